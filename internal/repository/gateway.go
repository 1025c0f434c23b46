package repository

import (
	"context"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GatewayContact maps Evolution's Contact table.
type GatewayContact struct {
	ID        string  `gorm:"column:id;primaryKey"`
	RemoteJID string  `gorm:"column:remoteJid"`
	Name      *string `gorm:"column:name"`
	PushName  *string `gorm:"column:pushName"`
	Instance  string  `gorm:"column:instance"`
}

func (GatewayContact) TableName() string {
	return "Contact"
}

// GatewayMessage maps Evolution's Message table.
type GatewayMessage struct {
	ID               string         `gorm:"column:id;primaryKey"`
	RemoteJID        string         `gorm:"column:remoteJid"`
	Instance         string         `gorm:"column:instance"`
	MessageTimestamp int64          `gorm:"column:messageTimestamp"`
	Message          datatypes.JSON `gorm:"column:message"`
	FromMe           bool           `gorm:"column:fromMe"`
}

func (GatewayMessage) TableName() string {
	return "Message"
}

// GatewayContactRow is a contact with the timestamp of its latest message (0 when none).
type GatewayContactRow struct {
	GatewayContact
	LastMessageAt int64 `gorm:"column:last_message_at"`
}

// GatewayRepository reads contacts and messages straight from Evolution's schema.
type GatewayRepository struct {
	db *gorm.DB
}

func NewGatewayRepository(db *gorm.DB) *GatewayRepository {
	return &GatewayRepository{db: db}
}

// Contacts returns the most recently active contacts first. Contacts without messages come last, by jid.
func (r *GatewayRepository) Contacts(ctx context.Context, instance string, limit int) ([]GatewayContactRow, error) {
	latest := r.db.Model(&GatewayMessage{}).
		Select("`remoteJid`, MAX(`messageTimestamp`) AS last_ts").
		Where(map[string]interface{}{"instance": instance}).
		Group("`remoteJid`")

	q := r.db.WithContext(ctx).Table("`Contact` AS c").
		Select("c.*, COALESCE(m.last_ts, 0) AS last_message_at").
		Joins("LEFT JOIN (?) AS m ON m.`remoteJid` = c.`remoteJid`", latest).
		Where("c.`instance` = ?", instance).
		Order("last_message_at DESC").
		Order("c.`remoteJid`")
	if limit > 0 {
		q = q.Limit(limit)
	}

	rows := []GatewayContactRow{}
	if err := q.Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Messages returns the newest messages first.
func (r *GatewayRepository) Messages(ctx context.Context, instance, remoteJID string, limit int) ([]GatewayMessage, error) {
	var messages []GatewayMessage
	q := r.db.WithContext(ctx).
		Where(map[string]interface{}{"instance": instance, "remoteJid": remoteJID}).
		Order("`messageTimestamp` DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

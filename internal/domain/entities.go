package domain

// Account is a sending WhatsApp number stored in the numeros table.
type Account struct {
	ID           int64   `json:"id"`
	Numero       string  `json:"numero"`
	RemoteJID    string  `json:"remotejid"`
	Descricao    string  `json:"descricao"`
	Instancia    string  `json:"instancia"`
	LinkPlanilha *string `json:"link_planilha,omitempty"`

	// Populated from the gateway, never persisted
	Status    string `json:"status,omitempty"`
	Connected bool   `json:"connected"`
}

// Display buckets for a gateway connection state
const (
	StatusConnected    = "connected"
	StatusConnecting   = "connecting"
	StatusDisconnected = "disconnected"
)

// InstanceStatus is the normalized view of a gateway instance.
type InstanceStatus struct {
	Status    string `json:"status"`
	Connected bool   `json:"connected"`
	QRCode    string `json:"qr_code,omitempty"`
}

// Lead is one spreadsheet row. Every field is a string, empty when the cell was blank.
type Lead struct {
	Filial      string `json:"filial"`
	Data        string `json:"data"`
	Nome        string `json:"nome"`
	Plano       string `json:"plano"`
	Telefone    string `json:"telefone"`
	Complemento string `json:"complemento"`
}

// DispatchPayload is the body posted to the automation webhook.
type DispatchPayload struct {
	Message            string  `json:"message"`
	Message2           string  `json:"message2"`
	Message3           string  `json:"message3"`
	Leads              []Lead  `json:"leads"`
	HaImg              bool    `json:"haImg"`
	Base64             *string `json:"base64"`
	HaVideo            bool    `json:"haVideo"`
	VideoURL           *string `json:"video_url"`
	DataAgendamento    *string `json:"data_agendamento"`
	HorarioAgendamento *string `json:"horario_agendamento"`
	Instancia          string  `json:"instancia"`
	RemoteJID          string  `json:"remotejid"`
	Numero             string  `json:"numero"`
	LinkPlanilha       *string `json:"link_planilha"`
}

// Contact is a chat partner listed for an instance.
type Contact struct {
	RemoteJID    string `json:"remote_jid"`
	Name         string `json:"name"`
	LastActivity string `json:"last_activity"`
	Timestamp    int64  `json:"timestamp"`
}

// Message is a display-ready chat message.
type Message struct {
	ID        string `json:"id"`
	RemoteJID string `json:"remote_jid"`
	FromMe    bool   `json:"from_me"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Unix      int64  `json:"unix"`
}

// ValidationError carries a message meant to be shown to the operator as is.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(message string) error {
	return &ValidationError{Message: message}
}

// UpstreamError is a failure of an external dependency with a message for the operator.
type UpstreamError struct {
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	return e.Message
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

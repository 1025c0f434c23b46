package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/viniciusxv27/enviomkt/internal/domain"
)

type Repositories struct {
	Account *AccountRepository
}

func NewRepositories(db *pgxpool.Pool) *Repositories {
	return &Repositories{
		Account: &AccountRepository{db: db},
	}
}

// AccountRepository handles the numeros table
type AccountRepository struct {
	db *pgxpool.Pool
}

func (r *AccountRepository) List(ctx context.Context) ([]*domain.Account, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, numero, remotejid, descricao, instancia, link_planilha
		FROM numeros ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]*domain.Account, 0)
	for rows.Next() {
		a := &domain.Account{}
		if err := rows.Scan(&a.ID, &a.Numero, &a.RemoteJID, &a.Descricao, &a.Instancia, &a.LinkPlanilha); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// GetByID returns nil, nil when the row does not exist.
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	a := &domain.Account{}
	err := r.db.QueryRow(ctx, `
		SELECT id, numero, remotejid, descricao, instancia, link_planilha
		FROM numeros WHERE id = $1
	`, id).Scan(&a.ID, &a.Numero, &a.RemoteJID, &a.Descricao, &a.Instancia, &a.LinkPlanilha)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *AccountRepository) Create(ctx context.Context, a *domain.Account) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO numeros (numero, remotejid, descricao, instancia, link_planilha)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, a.Numero, a.RemoteJID, a.Descricao, a.Instancia, a.LinkPlanilha).Scan(&a.ID)
}

// Update changes the editable columns and reports whether a row matched.
func (r *AccountRepository) Update(ctx context.Context, id int64, descricao string, linkPlanilha *string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE numeros SET descricao = $1, link_planilha = $2 WHERE id = $3
	`, descricao, linkPlanilha, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Delete reports whether a row was actually removed.
func (r *AccountRepository) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM numeros WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

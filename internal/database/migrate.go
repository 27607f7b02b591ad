package database

import (
	"context"
	"fmt"

	"github.com/rzpsarthak13/cardtable/internal/core"
)

var migrations = map[string][]string{
	DialectSQLite: {
		`CREATE TABLE IF NOT EXISTS cards (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			image_url TEXT,
			quantidade_produtos INTEGER NOT NULL DEFAULT 0,
			valor_total NUMERIC NOT NULL DEFAULT 0,
			frete NUMERIC NOT NULL DEFAULT 0,
			table_name TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tabelas_card (
			id TEXT PRIMARY KEY,
			id_card TEXT NOT NULL REFERENCES cards(id) ON DELETE CASCADE,
			nome_card TEXT,
			nome_produto TEXT NOT NULL,
			preco NUMERIC NOT NULL DEFAULT 0,
			imagem TEXT,
			link TEXT,
			categoria TEXT,
			descricao TEXT,
			importancia INTEGER,
			ordem INTEGER NOT NULL DEFAULT 0,
			tabela_personalizada TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tabelas_card_card_ordem ON tabelas_card (id_card, ordem)`,
	},
	DialectMySQL: {
		`CREATE TABLE IF NOT EXISTS cards (
			id VARCHAR(36) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			description TEXT,
			image_url MEDIUMTEXT,
			quantidade_produtos INT NOT NULL DEFAULT 0,
			valor_total DECIMAL(12,2) NOT NULL DEFAULT 0,
			frete DECIMAL(12,2) NOT NULL DEFAULT 0,
			table_name VARCHAR(64),
			created_at DATETIME(6) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tabelas_card (
			id VARCHAR(36) PRIMARY KEY,
			id_card VARCHAR(36) NOT NULL,
			nome_card VARCHAR(255),
			nome_produto VARCHAR(255) NOT NULL,
			preco DECIMAL(12,2) NOT NULL DEFAULT 0,
			imagem MEDIUMTEXT,
			link TEXT,
			categoria VARCHAR(255),
			descricao TEXT,
			importancia TINYINT,
			ordem INT NOT NULL DEFAULT 0,
			tabela_personalizada VARCHAR(64),
			INDEX idx_tabelas_card_card_ordem (id_card, ordem),
			CONSTRAINT fk_tabelas_card_card FOREIGN KEY (id_card) REFERENCES cards(id) ON DELETE CASCADE
		)`,
	},
	DialectPostgres: {
		`CREATE TABLE IF NOT EXISTS cards (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			image_url TEXT,
			quantidade_produtos INTEGER NOT NULL DEFAULT 0,
			valor_total NUMERIC(12,2) NOT NULL DEFAULT 0,
			frete NUMERIC(12,2) NOT NULL DEFAULT 0,
			table_name TEXT,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tabelas_card (
			id UUID PRIMARY KEY,
			id_card UUID NOT NULL REFERENCES cards(id) ON DELETE CASCADE,
			nome_card TEXT,
			nome_produto TEXT NOT NULL,
			preco NUMERIC(12,2) NOT NULL DEFAULT 0,
			imagem TEXT,
			link TEXT,
			categoria TEXT,
			descricao TEXT,
			importancia SMALLINT,
			ordem INTEGER NOT NULL DEFAULT 0,
			tabela_personalizada TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tabelas_card_card_ordem ON tabelas_card (id_card, ordem)`,
	},
}

// Migrate creates the cards and products tables when they do not exist.
func Migrate(ctx context.Context, db core.Database) error {
	statements, ok := migrations[db.Dialect()]
	if !ok {
		return fmt.Errorf("no migrations for dialect %q", db.Dialect())
	}
	for i, stmt := range statements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", i+1, err)
		}
	}
	return nil
}

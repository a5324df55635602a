package database

// Migrations lists the schema of the session backend in order.
func Migrations() []Migration {
	return []Migration{
		createSessionTable{},
	}
}

type createSessionTable struct{}

func (createSessionTable) Identifier() string {
	return "20250101000000_create_session_table"
}

func (createSessionTable) Up() string {
	return `
		CREATE TABLE IF NOT EXISTS tbl_session (
			id TEXT NOT NULL,
			token_hash TEXT NOT NULL,
			credential TEXT NOT NULL DEFAULT '',
			data TEXT NOT NULL DEFAULT '{}',
			expires_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (id)
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_session_token_hash ON tbl_session (token_hash);
		CREATE INDEX IF NOT EXISTS idx_session_expires_at ON tbl_session (expires_at);
	`
}

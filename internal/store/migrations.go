package store

type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create call logs",
		SQL: `
			CREATE TABLE call_logs (
				id          TEXT PRIMARY KEY,
				sid         TEXT NOT NULL UNIQUE,
				from_number TEXT NOT NULL,
				to_number   TEXT NOT NULL,
				direction   TEXT NOT NULL DEFAULT 'outbound',
				status      TEXT NOT NULL,
				duration    INTEGER NOT NULL DEFAULT 0,
				created_at  TEXT NOT NULL,
				updated_at  TEXT NOT NULL
			);

			CREATE INDEX idx_call_logs_created ON call_logs (created_at);
		`,
	},
	{
		Version: 2,
		Name:    "create integrations",
		SQL: `
			CREATE TABLE integrations (
				provider     TEXT PRIMARY KEY,
				account_sid  TEXT NOT NULL,
				auth_token   TEXT NOT NULL,
				phone_number TEXT NOT NULL DEFAULT '',
				created_at   TEXT NOT NULL,
				updated_at   TEXT NOT NULL
			);
		`,
	},
}

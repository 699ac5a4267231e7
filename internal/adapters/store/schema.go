package store

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS mail_accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL UNIQUE,
		imap_host TEXT NOT NULL,
		imap_port INTEGER NOT NULL,
		smtp_host TEXT NOT NULL,
		smtp_port INTEGER NOT NULL,
		username TEXT NOT NULL,
		password TEXT NOT NULL,
		use_ssl BOOLEAN NOT NULL DEFAULT 1,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		keywords TEXT NOT NULL DEFAULT '',
		is_default BOOLEAN NOT NULL DEFAULT 0,
		priority INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS templates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		category_id INTEGER NOT NULL REFERENCES categories(id),
		name TEXT NOT NULL,
		content TEXT NOT NULL,
		variables TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS emails (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id TEXT NOT NULL UNIQUE,
		sender TEXT NOT NULL DEFAULT '',
		subject TEXT NOT NULL DEFAULT '',
		body_text TEXT NOT NULL DEFAULT '',
		body_html TEXT NOT NULL DEFAULT '',
		received_at TIMESTAMP NOT NULL,
		language TEXT NOT NULL DEFAULT '',
		translation TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		category_id INTEGER,
		confidence REAL,
		draft_reply TEXT,
		final_reply TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_emails_status ON emails(status)`,
	`CREATE TABLE IF NOT EXISTS email_actions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id INTEGER NOT NULL REFERENCES emails(id),
		ai_category_id INTEGER,
		ai_confidence REAL,
		final_category_id INTEGER,
		sent_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		smtp_response TEXT NOT NULL DEFAULT ''
	)`,
}

var mysqlSchema = []string{
	"CREATE TABLE IF NOT EXISTS settings (" +
		"`key` VARCHAR(191) PRIMARY KEY, " +
		"value TEXT NOT NULL, " +
		"updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP" +
		")",
	`CREATE TABLE IF NOT EXISTS mail_accounts (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		email VARCHAR(191) NOT NULL UNIQUE,
		imap_host VARCHAR(255) NOT NULL,
		imap_port INT NOT NULL,
		smtp_host VARCHAR(255) NOT NULL,
		smtp_port INT NOT NULL,
		username VARCHAR(255) NOT NULL,
		password VARCHAR(255) NOT NULL,
		use_ssl BOOLEAN NOT NULL DEFAULT TRUE,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		description TEXT NOT NULL,
		keywords TEXT NOT NULL,
		is_default BOOLEAN NOT NULL DEFAULT FALSE,
		priority INT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS templates (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		category_id BIGINT NOT NULL,
		name VARCHAR(255) NOT NULL,
		content TEXT NOT NULL,
		variables TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS emails (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		message_id VARCHAR(191) NOT NULL UNIQUE,
		sender VARCHAR(255) NOT NULL DEFAULT '',
		subject TEXT,
		body_text MEDIUMTEXT,
		body_html MEDIUMTEXT,
		received_at TIMESTAMP NOT NULL,
		language VARCHAR(16) NOT NULL DEFAULT '',
		translation MEDIUMTEXT,
		status VARCHAR(16) NOT NULL DEFAULT 'pending',
		category_id BIGINT,
		confidence DOUBLE,
		draft_reply MEDIUMTEXT,
		final_reply MEDIUMTEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_emails_status (status)
	)`,
	`CREATE TABLE IF NOT EXISTS email_actions (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		message_id BIGINT NOT NULL,
		ai_category_id BIGINT,
		ai_confidence DOUBLE,
		final_category_id BIGINT,
		sent_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		smtp_response VARCHAR(255) NOT NULL DEFAULT ''
	)`,
}

func schemaFor(driver string) []string {
	if driver == DriverMySQL {
		return mysqlSchema
	}
	return sqliteSchema
}

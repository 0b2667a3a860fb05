package env

const (
	// Prefix is the prefix of every environment variable
	Prefix = "VEDOLLAR"

	// DBURLSuffix is the PostgreSQL DSN variable suffix
	DBURLSuffix = "_DB_URL"

	// TGIDSuffix is the Telegram client id variable suffix
	TGIDSuffix = "_TG_ID"

	// TGHashSuffix is the Telegram client secret variable suffix
	TGHashSuffix = "_TG_HASH"
)

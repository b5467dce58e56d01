package config

// EnvPrefix is passed to envconfig; individual fields carry fully qualified
// names so the prefix stays empty.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "SHOPLYTICS_DB_DSN"
	EnvDBHost = "SHOPLYTICS_DB_HOST"
	EnvDBUser = "SHOPLYTICS_DB_USER"
	EnvDBName = "SHOPLYTICS_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

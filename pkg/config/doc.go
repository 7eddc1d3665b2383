/*
Package config loads steward's runtime configuration from the environment
via viper.

Recognised variables:

	LISTEN_ADDR             HTTP listen address (default ":8000")
	DATA_DIR                bbolt data directory (default "/var/lib/steward")
	WORKERS                 worker pool size (default 4)
	TASK_RETENTION          terminal task results to keep (default 1000)
	BROKER_URL              accepted, warned about and ignored; the
	RESULT_BACKEND          embedded queue serves both roles
	RESET_TOKEN             bearer token for destructive endpoints;
	                        unset disables them with 503
	CORS_ALLOW_ORIGINS      comma-separated list or "*"
	SITES_FILE              YAML site inventory to pre-seed sessions from
	SMTP_HOST, SMTP_PORT, SMTP_USER, SMTP_PASS, SMTP_FROM, SMTP_STARTTLS
	SSH_CONNECT_TIMEOUT     default 30s (also used for banner/auth)
	HTTP_STATUS_TIMEOUT     default 30s
	PLUGIN_UPDATE_TIMEOUT   default 600s
	DOWNLOAD_WAIT_TIMEOUT   default 600s
	SETTLE_INTERVAL         update-ladder settle delay, default 1s
	LOG_LEVEL, LOG_JSON
*/
package config

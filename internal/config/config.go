package config

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	BaseURL     string `env:"BASE_URL"`
	DatabaseURL string `env:"DATABASE_URL" envDefault:"content_gate.db"`
	CatalogFile string `env:"CATALOG_FILE" envDefault:"catalog.json"`

	Oxapay Oxapay `envPrefix:"OXAPAY_"`
	Sweep  Sweep  `envPrefix:"SWEEP_"`
}

type Oxapay struct {
	BaseApiURL    string `env:"BASE_API_URL" envDefault:"https://api.oxapay.com/v1"`
	MerchantKey   string `env:"MERCHANT_KEY"`
	WebhookSecret string `env:"WEBHOOK_SECRET"`
	// Invoice lifetime in minutes, passed to the processor and reused as the
	// local expiry window for unpaid intents.
	InvoiceLifetimeMin int `env:"INVOICE_LIFETIME_MIN" envDefault:"30"`
	// ConfirmationPolicy decides when a paid intent counts as confirmed:
	// "immediate" confirms on the processor's Paid report, "processor" waits
	// for a Confirming/Confirmed report.
	ConfirmationPolicy string `env:"CONFIRMATION_POLICY" envDefault:"immediate"`
}

type Sweep struct {
	Interval string `env:"INTERVAL" envDefault:"1m"`
	// Intents stuck in created/pending longer than this are re-checked
	// against the processor before the expiry window closes them.
	ReconcileAfter string `env:"RECONCILE_AFTER" envDefault:"10m"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8080"`
}

package app

import (
	"fmt"

	"github.com/tech-arch1tect/authd/config"
	"github.com/tech-arch1tect/authd/database"
	"github.com/tech-arch1tect/authd/handlers/authhttp"
	"github.com/tech-arch1tect/authd/middleware/ratelimit"
	"github.com/tech-arch1tect/authd/server"
	"github.com/tech-arch1tect/authd/services/auth"
	jwtservice "github.com/tech-arch1tect/authd/services/jwt"
	"github.com/tech-arch1tect/authd/services/logging"
	"github.com/tech-arch1tect/authd/services/mail"
	"github.com/tech-arch1tect/authd/services/password"
	"github.com/tech-arch1tect/authd/services/passwordreset"
	"github.com/tech-arch1tect/authd/services/refreshtoken"
	"github.com/tech-arch1tect/authd/services/telemetry"
	"github.com/tech-arch1tect/authd/services/user"
	"go.uber.org/fx"
)

// Models are the tables owned by the service, in dependency order.
func Models() []any {
	return []any{
		&user.User{},
		&refreshtoken.RefreshToken{},
		&passwordreset.PasswordResetToken{},
	}
}

type AppBuilder struct {
	config    *config.Config
	fxOptions []fx.Option
	errors    []error
}

func NewApp() *AppBuilder {
	return &AppBuilder{
		fxOptions: make([]fx.Option, 0),
		errors:    make([]error, 0),
	}
}

func (b *AppBuilder) WithConfig(cfg *config.Config) *AppBuilder {
	if cfg == nil {
		b.addError("config cannot be nil")
		return b
	}
	b.config = cfg
	return b
}

func (b *AppBuilder) WithAutoConfig() *AppBuilder {
	cfg := &config.Config{}
	if err := config.LoadConfig(cfg); err != nil {
		b.addError(fmt.Sprintf("failed to load config: %v", err))
		return b
	}
	b.config = cfg
	return b
}

// WithFxOptions adds options to the graph, typically fx.Decorate or fx.Replace in tests.
func (b *AppBuilder) WithFxOptions(opts ...fx.Option) *AppBuilder {
	b.fxOptions = append(b.fxOptions, opts...)
	return b
}

func (b *AppBuilder) Build() (*App, error) {
	if len(b.errors) > 0 {
		return nil, fmt.Errorf("configuration errors: %v", b.errors)
	}

	if b.config == nil {
		b.WithAutoConfig()
		if len(b.errors) > 0 {
			return nil, fmt.Errorf("configuration errors: %v", b.errors)
		}
	}

	app := &App{config: b.config}

	options := append(b.Options(),
		fx.Populate(&app.logger, &app.server),
	)
	app.fx = fx.New(options...)

	if err := app.fx.Err(); err != nil {
		return nil, fmt.Errorf("failed to build application: %w", err)
	}

	return app, nil
}

// Options is the complete dependency graph of the service.
func (b *AppBuilder) Options() []fx.Option {
	options := []fx.Option{
		fx.NopLogger,
		config.NewProvider(b.config),
		fx.Supply(database.WithModels(Models()...)),

		logging.Module,
		telemetry.Module,
		database.Module,

		user.Options,
		refreshtoken.Options,
		passwordreset.Options,
		jwtservice.Options,
		password.Options,
		mail.Module,
		auth.Module,

		ratelimit.Module,
		server.NewProvider(),
		authhttp.Module,
	}

	return append(options, b.fxOptions...)
}

func (b *AppBuilder) addError(msg string) {
	b.errors = append(b.errors, fmt.Errorf("%s", msg))
}

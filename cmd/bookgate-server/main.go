package main

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"io/ioutil"
	stdlog "log"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	jose "github.com/go-jose/go-jose/v3"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/bookgate/bookgate/pkg/authenticate"
	jwtauth "github.com/bookgate/bookgate/pkg/authenticate/jwt"
	oidcauth "github.com/bookgate/bookgate/pkg/authenticate/oidc"
	remoteauth "github.com/bookgate/bookgate/pkg/authenticate/remote"
	"github.com/bookgate/bookgate/pkg/authenticate/static"
	"github.com/bookgate/bookgate/pkg/authorize"
	"github.com/bookgate/bookgate/pkg/book"
	"github.com/bookgate/bookgate/pkg/book/instrumented"
	"github.com/bookgate/bookgate/pkg/book/local"
	bookremote "github.com/bookgate/bookgate/pkg/book/remote"
	"github.com/bookgate/bookgate/pkg/book/ratelimited"
	"github.com/bookgate/bookgate/pkg/cache"
	"github.com/bookgate/bookgate/pkg/cache/memcached"
	bookgate_http "github.com/bookgate/bookgate/pkg/http"
	"github.com/bookgate/bookgate/pkg/logger"
	bookgate_oauth2 "github.com/bookgate/bookgate/pkg/oauth2"
	"github.com/bookgate/bookgate/pkg/prom"
	"github.com/bookgate/bookgate/pkg/server"
	"github.com/bookgate/bookgate/pkg/tracing"
)

const desc = `
Server brokering access to spreadsheet workbook sessions. Each request is
authenticated against one of the configured auth providers, bound to a book
session on the engine and released when the request finishes.
`

// Names of the auth providers this binary can construct. Other names may be
// configured; requests selecting them are rejected with a server error.
const (
	providerStatic = "static"
	providerJWT    = "jwt"
	providerOIDC   = "oidc"
	providerRemote = "remote"
)

func defaultOpts() *Options {
	return &Options{
		LimitBytes:        500 * 1024,
		TokenCacheTTL:     5 * time.Minute,
		JWTIssuer:         "bookgate",
		JWTAudiences:      []string{"bookgate"},
		OIDCUsernameClaim: "preferred_username",
		OIDCRolesClaim:    "roles",
	}
}

func main() {
	opt := defaultOpts()

	var listen, listenInternal string
	cmd := &cobra.Command{
		Short:         "Broker authenticated access to spreadsheet workbook sessions.",
		Long:          desc,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			listener, err := net.Listen("tcp", listen)
			if err != nil {
				return err
			}
			internalListener, err := net.Listen("tcp", listenInternal)
			if err != nil {
				return err
			}

			return opt.Run(context.Background(), listener, internalListener)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "0.0.0.0:9080", "A host:port to listen on for book traffic.")
	cmd.Flags().StringVar(&listenInternal, "listen-internal", "localhost:9081", "A host:port to listen on for health and metrics.")

	cmd.Flags().StringVar(&opt.TLSKeyPath, "tls-key", opt.TLSKeyPath, "Path to a private key to serve TLS for external traffic.")
	cmd.Flags().StringVar(&opt.TLSCertificatePath, "tls-crt", opt.TLSCertificatePath, "Path to a certificate to serve TLS for external traffic.")

	cmd.Flags().StringVar(&opt.InternalTLSKeyPath, "internal-tls-key", opt.InternalTLSKeyPath, "Path to a private key to serve TLS for internal traffic.")
	cmd.Flags().StringVar(&opt.InternalTLSCertificatePath, "internal-tls-crt", opt.InternalTLSCertificatePath, "Path to a certificate to serve TLS for internal traffic.")

	cmd.Flags().StringArrayVar(&opt.AuthProviders, "auth-provider", opt.AuthProviders, "Name of an auth provider to enable. May be repeated; clients then select one per request with the Auth-Provider header. Implemented providers: static, jwt, oidc, remote.")
	cmd.Flags().StringArrayVar(&opt.RequiredRoles, "auth-required-role", opt.RequiredRoles, "A role every authenticated principal must hold. May be repeated.")

	cmd.Flags().StringVar(&opt.TokenFilePath, "auth-token-file", opt.TokenFilePath, "Path to a JSON file with the static provider's token table.")

	cmd.Flags().StringVar(&opt.JWTIssuer, "jwt-issuer", opt.JWTIssuer, "The issuer the jwt provider requires in tokens.")
	cmd.Flags().StringArrayVar(&opt.JWTKeyPaths, "jwt-key", opt.JWTKeyPaths, "Path to a PEM encoded key the jwt provider verifies token signatures with. May be repeated for key rotation; a private key is reduced to its public half.")
	cmd.Flags().StringArrayVar(&opt.JWTAudiences, "jwt-audience", opt.JWTAudiences, "An audience the jwt provider accepts tokens for. May be repeated.")

	cmd.Flags().StringVar(&opt.OIDCIssuer, "oidc-issuer", opt.OIDCIssuer, "The OIDC issuer URL, see https://openid.net/specs/openid-connect-discovery-1_0.html#IssuerDiscovery.")
	cmd.Flags().StringVar(&opt.OIDCClientID, "oidc-client-id", opt.OIDCClientID, "The OIDC client ID the oidc provider requires ID tokens to be issued for.")
	cmd.Flags().StringVar(&opt.OIDCUsernameClaim, "oidc-username-claim", opt.OIDCUsernameClaim, "The ID token claim carrying the principal's display name.")
	cmd.Flags().StringVar(&opt.OIDCRolesClaim, "oidc-roles-claim", opt.OIDCRolesClaim, "The ID token claim carrying the principal's roles.")

	cmd.Flags().StringVar(&opt.ValidateURL, "validate-url", opt.ValidateURL, "URL of the endpoint the remote provider POSTs credentials to for validation.")
	cmd.Flags().StringVar(&opt.ValidateTokenURL, "validate-token-url", opt.ValidateTokenURL, "The oauth2 token endpoint for authenticating to the validation endpoint.")
	cmd.Flags().StringVar(&opt.ValidateClientID, "validate-client-id", opt.ValidateClientID, "The oauth2 client ID, see https://tools.ietf.org/html/rfc6749#section-2.3.")
	cmd.Flags().StringVar(&opt.ValidateClientSecret, "validate-client-secret", opt.ValidateClientSecret, "The oauth2 client secret, see https://tools.ietf.org/html/rfc6749#section-2.3.")
	cmd.Flags().StringVar(&opt.ValidateUsername, "validate-username", opt.ValidateUsername, "Resource owner username for the oauth2 password grant against the token endpoint.")
	cmd.Flags().StringVar(&opt.ValidatePassword, "validate-password", opt.ValidatePassword, "Resource owner password for the oauth2 password grant against the token endpoint.")
	cmd.Flags().StringVar(&opt.ValidateClientJWTKeyPath, "validate-client-jwt-key", opt.ValidateClientJWTKeyPath, "Path to a PEM encoded private key for signing client assertions against the token endpoint, replacing the client secret.")
	cmd.Flags().StringVar(&opt.ValidateAudience, "validate-audience", opt.ValidateAudience, "The oauth2 audience some providers like Auth0 need.")

	cmd.Flags().StringArrayVar(&opt.MemcachedServers, "memcached", opt.MemcachedServers, "Memcached server to cache validation results in, as host:port. May be repeated.")
	cmd.Flags().DurationVar(&opt.TokenCacheTTL, "token-cache-ttl", opt.TokenCacheTTL, "How long cached validation results stay valid.")

	cmd.Flags().StringVar(&opt.EngineURL, "engine-url", opt.EngineURL, "Base URL of the spreadsheet engine to open book sessions on. With no URL an in-process engine is used.")
	cmd.Flags().StringVar(&opt.EngineToken, "engine-token", opt.EngineToken, "Bearer token for requests to the engine.")
	cmd.Flags().StringVar(&opt.EngineTokenFile, "engine-token-file", opt.EngineTokenFile, "File containing the bearer token for requests to the engine.")

	cmd.Flags().DurationVar(&opt.SessionLimitInterval, "session-limit-interval", opt.SessionLimitInterval, "Minimum interval between book sessions opened by one principal. Opens happening more often than this are rejected; zero disables the limit.")

	cmd.Flags().Int64Var(&opt.LimitBytes, "limit-bytes", opt.LimitBytes, "The maximum acceptable size of a request made to the book endpoint.")

	cmd.Flags().BoolVarP(&opt.Verbose, "verbose", "v", opt.Verbose, "Show verbose output.")

	cmd.Flags().StringVar(&opt.LogLevel, "log-level", opt.LogLevel, "Log filtering level. e.g info, debug, warn, error")

	cmd.Flags().StringVar(&opt.TracingServiceName, "internal.tracing.service-name", "bookgate-server",
		"The service name to report to the tracing backend.")
	cmd.Flags().StringVar(&opt.TracingEndpoint, "internal.tracing.endpoint", "",
		"The full URL of the trace collector. If it's not set, tracing will be disabled.")
	cmd.Flags().Float64Var(&opt.TracingSamplingFraction, "internal.tracing.sampling-fraction", 0.1,
		"The fraction of traces to sample. Thus, if you set this to .5, half of traces will be sampled.")
	cmd.Flags().StringVar(&opt.TracingEndpointType, "internal.tracing.endpoint-type", string(tracing.EndpointTypeAgent),
		fmt.Sprintf("The tracing endpoint type. Options: '%s', '%s'.", tracing.EndpointTypeAgent, tracing.EndpointTypeCollector))

	l := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	l = log.WithPrefix(l, "ts", log.DefaultTimestampUTC)
	l = log.WithPrefix(l, "caller", log.DefaultCaller)
	stdlog.SetOutput(log.NewStdlibAdapter(l))
	opt.Logger = l

	level.Info(l).Log("msg", "Bookgate server initialized.")
	if err := cmd.Execute(); err != nil {
		level.Error(l).Log("err", err)
		os.Exit(1)
	}
}

type Options struct {
	// External server TLS configuration
	TLSKeyPath         string
	TLSCertificatePath string

	// Internal server TLS configuration
	InternalTLSKeyPath         string
	InternalTLSCertificatePath string

	AuthProviders []string
	RequiredRoles []string

	TokenFilePath string

	JWTIssuer    string
	JWTKeyPaths  []string
	JWTAudiences []string

	OIDCIssuer        string
	OIDCClientID      string
	OIDCUsernameClaim string
	OIDCRolesClaim    string

	ValidateURL              string
	ValidateTokenURL         string
	ValidateClientID         string
	ValidateClientSecret     string
	ValidateUsername         string
	ValidatePassword         string
	ValidateClientJWTKeyPath string
	ValidateAudience         string

	MemcachedServers []string
	TokenCacheTTL    time.Duration

	EngineURL       string
	EngineToken     string
	EngineTokenFile string

	SessionLimitInterval time.Duration

	LimitBytes int64

	LogLevel string
	Logger   log.Logger

	TracingServiceName      string
	TracingEndpoint         string
	TracingEndpointType     string
	TracingSamplingFraction float64

	Verbose bool
}

type Paths struct {
	Paths []string `json:"paths"`
}

func (o *Options) Run(ctx context.Context, externalListener, internalListener net.Listener) error {
	switch {
	case len(o.TLSCertificatePath) == 0 && len(o.TLSKeyPath) > 0,
		len(o.TLSCertificatePath) > 0 && len(o.TLSKeyPath) == 0:
		return fmt.Errorf("both --tls-key and --tls-crt must be provided")
	}
	switch {
	case len(o.InternalTLSCertificatePath) == 0 && len(o.InternalTLSKeyPath) > 0,
		len(o.InternalTLSCertificatePath) > 0 && len(o.InternalTLSKeyPath) == 0:
		return fmt.Errorf("both --internal-tls-key and --internal-tls-crt must be provided")
	}

	o.Logger = level.NewFilter(o.Logger, logger.LogLevelFromString(o.LogLevel))

	tp, err := tracing.InitTracer(
		ctx,
		o.TracingServiceName,
		o.TracingEndpoint,
		o.TracingEndpointType,
		o.TracingSamplingFraction,
	)
	if err != nil {
		return fmt.Errorf("cannot initialize tracer: %v", err)
	}

	otel.SetErrorHandler(tracing.OtelErrorHandler{Logger: o.Logger})

	var transport http.RoundTripper = otelhttp.NewTransport(&http.Transport{
		DialContext:         (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     30 * time.Second,
	})

	if o.Verbose {
		transport = bookgate_http.NewDebugRoundTripper(o.Logger, transport)
	}

	// Clients built below share the transport; they are collected so
	// shutdown can close their idle connections.
	var clients []*http.Client

	var engine book.Engine
	if o.EngineURL != "" {
		engineURL, err := url.Parse(o.EngineURL)
		if err != nil {
			return fmt.Errorf("--engine-url must be a valid URL: %v", err)
		}

		engineClient := &http.Client{
			Timeout:   30 * time.Second,
			Transport: bookgate_http.NewInstrumentedRoundTripper("engine", transport),
		}

		token := o.EngineToken
		if o.EngineTokenFile != "" {
			data, err := ioutil.ReadFile(o.EngineTokenFile)
			if err != nil {
				return fmt.Errorf("unable to read --engine-token-file: %v", err)
			}
			token = strings.TrimSpace(string(data))
		}
		if token != "" {
			engineClient.Transport = bookgate_http.NewBearerRoundTripper(token, engineClient.Transport)
		}

		clients = append(clients, engineClient)
		engine = bookremote.New(o.Logger, engineClient, engineURL)
	} else {
		level.Warn(o.Logger).Log("msg", "using the in-process book engine")
		engine = local.New(o.Logger)
	}
	if o.SessionLimitInterval > 0 {
		engine = ratelimited.New(o.SessionLimitInterval, engine)
	}
	engine = instrumented.New(engine, prometheus.DefaultRegisterer)

	cfg := authenticate.NewConfig(o.AuthProviders, o.RequiredRoles)

	validators := make(map[string]authenticate.TokenValidator)
	for _, name := range cfg.Providers() {
		if _, ok := validators[name]; ok {
			continue
		}
		switch name {
		case providerStatic:
			if o.TokenFilePath == "" {
				return fmt.Errorf("the static auth provider needs --auth-token-file")
			}
			v, err := static.NewFromFile(o.Logger, o.TokenFilePath)
			if err != nil {
				return fmt.Errorf("unable to load --auth-token-file: %v", err)
			}
			validators[name] = v

		case providerJWT:
			if len(o.JWTKeyPaths) == 0 {
				return fmt.Errorf("the jwt auth provider needs at least one --jwt-key")
			}
			var keys []crypto.PublicKey
			for _, path := range o.JWTKeyPaths {
				data, err := ioutil.ReadFile(path)
				if err != nil {
					return fmt.Errorf("unable to read --jwt-key: %v", err)
				}
				key, err := loadPublicKey(data)
				if err != nil {
					return fmt.Errorf("unable to parse --jwt-key %s: %v", path, err)
				}
				keys = append(keys, key)
			}
			validators[name] = jwtauth.NewValidator(o.Logger, o.JWTIssuer, o.JWTAudiences, keys)

		case providerOIDC:
			if o.OIDCIssuer == "" || o.OIDCClientID == "" {
				return fmt.Errorf("the oidc auth provider needs --oidc-issuer and --oidc-client-id")
			}
			oidcClient := &http.Client{
				Timeout:   20 * time.Second,
				Transport: bookgate_http.NewInstrumentedRoundTripper("oidc", transport),
			}
			clients = append(clients, oidcClient)
			v, err := oidcauth.New(ctx, o.Logger, oidcClient, oidcauth.Config{
				Issuer:        o.OIDCIssuer,
				ClientID:      o.OIDCClientID,
				UsernameClaim: o.OIDCUsernameClaim,
				RolesClaim:    o.OIDCRolesClaim,
			})
			if err != nil {
				return err
			}
			validators[name] = v

		case providerRemote:
			if o.ValidateURL == "" {
				return fmt.Errorf("the remote auth provider needs --validate-url")
			}
			validateURL, err := url.Parse(o.ValidateURL)
			if err != nil {
				return fmt.Errorf("--validate-url must be a valid URL: %v", err)
			}
			validateClient := &http.Client{
				Timeout:   20 * time.Second,
				Transport: bookgate_http.NewInstrumentedRoundTripper("validate", transport),
			}
			tokenClient, err := o.configureValidateTokenSource(ctx, validateClient, transport)
			if err != nil {
				return err
			}
			clients = append(clients, validateClient)
			if tokenClient != nil {
				clients = append(clients, tokenClient)
			}
			validators[name] = remoteauth.NewValidator(o.Logger, validateClient, validateURL)

		default:
			// The provider stays selectable so requests naming it get the
			// implementation-missing answer instead of an unknown provider.
			level.Warn(o.Logger).Log("msg", "configured auth provider has no implementation", "provider", name)
		}
	}

	if len(o.MemcachedServers) > 0 {
		c := memcached.New(int32(o.TokenCacheTTL/time.Second), o.MemcachedServers...)
		for name, v := range validators {
			validators[name] = cache.NewTokenValidator(c, v, o.Logger,
				prom.WrapRegistererWith(prometheus.Labels{"provider": name}, prometheus.DefaultRegisterer))
		}
	}

	auth := authenticate.New(o.Logger, cfg, authenticate.NewRegistry(validators))
	checker := authorize.NewChecker(cfg)

	var g run.Group
	{
		internal := http.NewServeMux()

		bookgate_http.DebugRoutes(internal)
		bookgate_http.MetricRoutes(internal)
		bookgate_http.HealthRoutes(internal)

		r := chi.NewRouter()
		r.Mount("/", internal)

		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			internalPathJSON, _ := json.MarshalIndent(Paths{Paths: []string{"/", "/metrics", "/debug/pprof", "/healthz", "/healthz/ready"}}, "", "  ")

			w.Header().Add("Content-Type", "application/json")
			if _, err := w.Write(internalPathJSON); err != nil {
				level.Error(o.Logger).Log("msg", "could not write internal paths", "err", err)
			}
		})

		s := &http.Server{
			Handler: otelhttp.NewHandler(r, "internal", otelhttp.WithTracerProvider(tp)),
		}

		// Run the internal server.
		g.Add(func() error {
			if len(o.InternalTLSCertificatePath) > 0 {
				if err := s.ServeTLS(internalListener, o.InternalTLSCertificatePath, o.InternalTLSKeyPath); err != nil && err != http.ErrServerClosed {
					level.Error(o.Logger).Log("msg", "internal HTTPS server exited", "err", err)
					return err
				}
			} else {
				if err := s.Serve(internalListener); err != nil && err != http.ErrServerClosed {
					level.Error(o.Logger).Log("msg", "internal HTTP server exited", "err", err)
					return err
				}
			}
			return nil
		}, func(error) {
			_ = s.Shutdown(context.TODO())
			internalListener.Close()
		})
	}
	{
		external := chi.NewRouter()
		external.Use(middleware.RequestID)
		external.Use(server.RequestLogger(o.Logger))

		mux := http.NewServeMux()
		bookgate_http.HealthRoutes(mux)
		external.Mount("/", mux)

		// bookgate routes
		external.Handle("/api/v1/book", server.InstrumentedHandler("book",
			authenticate.NewHandler(o.Logger, auth, checker,
				server.Snappy(server.NewBookHandler(o.Logger, engine, o.LimitBytes, server.DescribeBook)))))

		externalPathJSON, _ := json.MarshalIndent(Paths{Paths: []string{"/", "/healthz", "/healthz/ready", "/api/v1/book"}}, "", "  ")

		external.Get("/", func(w http.ResponseWriter, req *http.Request) {
			w.Header().Add("Content-Type", "application/json")
			if _, err := w.Write(externalPathJSON); err != nil {
				level.Error(o.Logger).Log("msg", "could not write external paths", "err", err)
			}
		})

		s := &http.Server{
			Handler: otelhttp.NewHandler(external, "external", otelhttp.WithTracerProvider(tp)),
			ErrorLog: stdlog.New(
				&filteredHTTP2ErrorWriter{
					out:               os.Stderr,
					toDebugLogFilters: logFilter,
					logger:            o.Logger,
				},
				"",
				0),
		}

		// Run the external server.
		g.Add(func() error {
			if len(o.TLSCertificatePath) > 0 {
				if err := s.ServeTLS(externalListener, o.TLSCertificatePath, o.TLSKeyPath); err != nil && err != http.ErrServerClosed {
					level.Error(o.Logger).Log("msg", "external HTTPS server exited", "err", err)
					return err
				}
			} else {
				if err := s.Serve(externalListener); err != nil && err != http.ErrServerClosed {
					level.Error(o.Logger).Log("msg", "external HTTP server exited", "err", err)
					return err
				}
			}
			return nil
		}, func(error) {
			_ = s.Shutdown(context.TODO())
			externalListener.Close()

			// Close clients in order to check for leaks properly.
			for _, c := range clients {
				c.CloseIdleConnections()
			}
		})
	}

	// Kill all when caller requests to.
	gctx, gcancel := context.WithCancel(ctx)
	g.Add(func() error {
		<-gctx.Done()
		return gctx.Err()
	}, func(err error) {
		gcancel()
	})

	level.Info(o.Logger).Log("msg", "starting bookgate-server", "external", externalListener.Addr().String(), "internal", internalListener.Addr().String())

	return g.Run()
}

// configureValidateTokenSource attaches an oauth2 token source to the
// validation client when credentials for the token endpoint are configured.
// It returns the client used for token endpoint requests, if any.
func (o *Options) configureValidateTokenSource(ctx context.Context, validateClient *http.Client, transport http.RoundTripper) (*http.Client, error) {
	if o.ValidateUsername == "" && o.ValidateClientSecret == "" && o.ValidateClientJWTKeyPath == "" {
		return nil, nil
	}
	if o.ValidateTokenURL == "" || o.ValidateClientID == "" {
		return nil, fmt.Errorf("authenticating to the validation endpoint needs --validate-token-url and --validate-client-id")
	}

	tokenClient := &http.Client{
		Timeout:   20 * time.Second,
		Transport: bookgate_http.NewInstrumentedRoundTripper("oauth", transport),
	}

	if o.ValidateUsername != "" {
		cfg := oauth2.Config{
			ClientID:     o.ValidateClientID,
			ClientSecret: o.ValidateClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: o.ValidateTokenURL},
		}

		ctx = context.WithValue(ctx, oauth2.HTTPClient, tokenClient)
		src := bookgate_oauth2.NewPasswordCredentialsTokenSource(ctx, &cfg, o.ValidateUsername, o.ValidatePassword)

		validateClient.Transport = &oauth2.Transport{
			Base:   validateClient.Transport,
			Source: src,
		}
		return tokenClient, nil
	}

	if o.ValidateClientJWTKeyPath != "" {
		data, err := ioutil.ReadFile(o.ValidateClientJWTKeyPath)
		if err != nil {
			return nil, fmt.Errorf("unable to read --validate-client-jwt-key: %v", err)
		}
		key, err := loadPrivateKey(data)
		if err != nil {
			return nil, err
		}
		alg, err := signatureAlgorithm(key)
		if err != nil {
			return nil, err
		}
		signer, err := jose.NewSigner(jose.SigningKey{Algorithm: alg, Key: key}, nil)
		if err != nil {
			return nil, fmt.Errorf("unable to create the client assertion signer: %v", err)
		}

		tokenClient.Transport = bookgate_oauth2.NewJWTClientAuthenticator(
			bookgate_oauth2.ClientClaims{
				Issuer:   o.ValidateClientID,
				Subject:  o.ValidateClientID,
				Audience: []string{o.ValidateTokenURL},
				Expiry:   time.Minute,
			},
			signer,
			tokenClient.Transport,
		)
	}

	cfg := clientcredentials.Config{
		ClientID:     o.ValidateClientID,
		ClientSecret: o.ValidateClientSecret,
		TokenURL:     o.ValidateTokenURL,
	}

	if o.ValidateAudience != "" {
		cfg.EndpointParams = url.Values{"audience": []string{o.ValidateAudience}}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, tokenClient)

	validateClient.Transport = &oauth2.Transport{
		Base:   validateClient.Transport,
		Source: cfg.TokenSource(ctx),
	}
	return tokenClient, nil
}

// loadPublicKey loads a public key from PEM/DER-encoded data. Private keys
// are accepted and reduced to their public half.
func loadPublicKey(data []byte) (crypto.PublicKey, error) {
	input := data

	block, _ := pem.Decode(data)
	if block != nil {
		input = block.Bytes
	}

	pub, err0 := x509.ParsePKIXPublicKey(input)
	if err0 == nil {
		return pub, nil
	}

	if cert, err := x509.ParseCertificate(input); err == nil {
		return cert.PublicKey, nil
	}

	priv, err1 := loadPrivateKey(data)
	if err1 == nil {
		switch t := priv.(type) {
		case *ecdsa.PrivateKey:
			return t.Public(), nil
		case *rsa.PrivateKey:
			return t.Public(), nil
		}
	}

	return nil, fmt.Errorf("unable to parse public key data: '%s' and '%s'", err0, err1)
}

// loadPrivateKey loads a private key from PEM/DER-encoded data.
func loadPrivateKey(data []byte) (interface{}, error) {
	input := data

	block, _ := pem.Decode(data)
	if block != nil {
		input = block.Bytes
	}

	var priv interface{}
	priv, err0 := x509.ParsePKCS1PrivateKey(input)
	if err0 == nil {
		return priv, nil
	}

	priv, err1 := x509.ParsePKCS8PrivateKey(input)
	if err1 == nil {
		return priv, nil
	}

	priv, err2 := x509.ParseECPrivateKey(input)
	if err2 == nil {
		return priv, nil
	}

	return nil, fmt.Errorf("unable to parse private key data: '%s', '%s' and '%s'", err0, err1, err2)
}

// signatureAlgorithm picks the jose algorithm matching the private key.
func signatureAlgorithm(key interface{}) (jose.SignatureAlgorithm, error) {
	switch t := key.(type) {
	case *rsa.PrivateKey:
		return jose.RS256, nil
	case *ecdsa.PrivateKey:
		switch t.Curve {
		case elliptic.P256():
			return jose.ES256, nil
		case elliptic.P384():
			return jose.ES384, nil
		case elliptic.P521():
			return jose.ES512, nil
		default:
			return "", fmt.Errorf("unknown private key curve, must be 256, 384, or 521")
		}
	default:
		return "", fmt.Errorf("unknown private key type %T, must be *rsa.PrivateKey or *ecdsa.PrivateKey", key)
	}
}

// logFilter is a list of filters
var logFilter = [][]string{
	// filter out TCP probes
	// see https://github.com/golang/go/issues/26918
	{
		"http2: server: error reading preface from client",
		"read: connection reset by peer",
	},
}

type filteredHTTP2ErrorWriter struct {
	out io.Writer
	// toDebugLogFilters is a list of filters.
	// All strings within a filter must match for the filter to match.
	// If any of the filters matches, the log is written to debug level.
	toDebugLogFilters [][]string
	logger            log.Logger
}

func (w *filteredHTTP2ErrorWriter) Write(p []byte) (int, error) {
	logContents := string(p)

	for _, filter := range w.toDebugLogFilters {
		shouldFilter := true
		for _, matches := range filter {
			if !strings.Contains(logContents, matches) {
				shouldFilter = false
				break
			}
		}
		if shouldFilter {
			level.Debug(w.logger).Log("msg", "http server error log has been filtered", "error", logContents)
			return len(p), nil
		}
	}
	return w.out.Write(p)
}

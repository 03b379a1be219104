package graphdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Byeongcheol-Kim/graphchat/internal/platform/envutil"
	"github.com/Byeongcheol-Kim/graphchat/internal/platform/logger"
)

type Client struct {
	Driver   neo4j.DriverWithContext
	Database string
	log      *logger.Logger
}

// NewFromEnv connects to the graph database configured through GRAPH_*
// variables. The store is mandatory: connectivity failure is returned to the
// caller, which treats it as fatal at boot.
func NewFromEnv(log *logger.Logger) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("graphdb: logger required")
	}

	host := envutil.Str("GRAPH_HOST", "localhost")
	port := envutil.Int("GRAPH_PORT", 7687)
	uri := fmt.Sprintf("bolt://%s:%d", host, port)
	if v := envutil.Str("GRAPH_URI", ""); v != "" {
		uri = v
	}

	user := envutil.Str("GRAPH_USER", "neo4j")
	password := envutil.Str("GRAPH_PASSWORD", "")
	database := envutil.Str("GRAPH_NAME", "")
	timeoutSec := envutil.Int("GRAPH_TIMEOUT_SECONDS", 10)
	maxPool := envutil.Int("GRAPH_MAX_POOL_SIZE", 50)

	auth := neo4j.BasicAuth(user, password, "")
	driver, err := neo4j.NewDriverWithContext(uri, auth, func(cfg *neo4j.Config) {
		cfg.MaxConnectionPoolSize = maxPool
		cfg.SocketConnectTimeout = time.Duration(timeoutSec) * time.Second
	})
	if err != nil {
		return nil, fmt.Errorf("graphdb: init driver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSec)*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("graphdb: verify connectivity: %w", err)
	}

	log.Info("Graph database connected", "uri", redactedURI(uri), "database", database)

	return &Client{
		Driver:   driver,
		Database: database,
		log:      log.With("client", "GraphDB"),
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.Driver == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := c.Driver.Close(ctx)
	c.Driver = nil
	return err
}

func redactedURI(uri string) string {
	if at := strings.Index(uri, "@"); at >= 0 {
		if scheme := strings.Index(uri, "://"); scheme >= 0 && scheme < at {
			return uri[:scheme+3] + "***" + uri[at:]
		}
	}
	return uri
}

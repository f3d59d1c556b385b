package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/smallnest/memograph/analyzer"
	"github.com/smallnest/memograph/embedding"
	"github.com/smallnest/memograph/llms/oai"
	"github.com/smallnest/memograph/log"
	"github.com/smallnest/memograph/memory"
	"github.com/smallnest/memograph/memstore"
	"github.com/smallnest/memograph/relationship"
	"github.com/smallnest/memograph/rlm"
	"github.com/smallnest/memograph/storage"
)

const serverVersion = "1.0.0"

// Server bundles the engines behind one MCP stdio server.
type Server struct {
	cfg      memory.Config
	client   storage.Client
	store    *memstore.Store
	rels     *relationship.Engine
	chains   *rlm.Coordinator
	analyzer *analyzer.Analyzer
	server   *mcp.Server
	logger   log.Logger
}

// NewServer wires a full memograph stack from configuration: storage client,
// embedding builder, memory store, relationship engine, chain coordinator,
// and analyzer. Without an LLM credential the embedding builder degrades to
// trigram-only vectors and the analyzer reports Misconfigured on use.
func NewServer(ctx context.Context, cfg memory.Config) (*Server, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := storage.NewRedisClient(ctx, cfg.BackendURL)
	if err != nil {
		return nil, err
	}

	var extractor embedding.KeywordExtractor
	var model *oai.LLM
	if cfg.LLMAPIKey != "" {
		model, err = oai.New(oai.WithAPIKey(cfg.LLMAPIKey))
		if err != nil {
			client.Close()
			return nil, memory.WrapError(memory.KindMisconfigured, "LLM client setup failed", err)
		}
		extractor = embedding.NewLLMExtractor(model)
	}

	store := memstore.New(client, embedding.NewBuilder(extractor), cfg)

	s := &Server{
		cfg:    cfg,
		client: client,
		store:  store,
		rels:   relationship.NewEngine(client, store, memory.WorkspaceID(cfg.WorkspacePath)),
		chains: rlm.NewCoordinator(client, memory.WorkspaceID(cfg.WorkspacePath)),
		logger: log.GetDefaultLogger(),
	}
	if model != nil {
		s.analyzer = analyzer.New(model)
	} else {
		s.analyzer = analyzer.New(nil)
	}

	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    "memograph",
		Version: serverVersion,
	}, nil)
	s.registerTools()
	return s, nil
}

// Run serves MCP over stdio until ctx is cancelled, then closes the storage
// connection.
func (s *Server) Run(ctx context.Context) error {
	defer s.Close()
	s.logger.Info("memograph MCP server starting, workspace=%s mode=%s",
		s.cfg.WorkspacePath, s.cfg.Mode)
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Close releases the storage connection.
func (s *Server) Close() error {
	return s.client.Close()
}

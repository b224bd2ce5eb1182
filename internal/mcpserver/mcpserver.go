// Package mcpserver exposes a *stratadb.DB over the Model Context Protocol:
// a "query" tool for arbitrary SQL (translated via frontend.Translator into
// a command.Command before reaching the core) plus read-only introspection
// tools. Single-process, single-database scope: no multi-database registry,
// no API-key auth layer.
package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	stratadb "github.com/stratadb/stratadb"
	"github.com/stratadb/stratadb/frontend"
)

// Server wraps a *stratadb.DB with an MCP tool surface.
type Server struct {
	db *stratadb.DB
	tr *frontend.Translator
}

// New creates an MCP server backed by db.
func New(db *stratadb.DB) *Server {
	return &Server{db: db, tr: frontend.NewTranslator()}
}

// MCPServer builds the underlying mcp-go server with every tool registered,
// for callers that want to mount it on their own transport (stdio, HTTP).
func (s *Server) MCPServer() *mcpserver.MCPServer {
	srv := mcpserver.NewMCPServer(
		"stratadb",
		"1.0.0",
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
	)

	queryTool := mcp.NewTool("query",
		mcp.WithDescription("Execute a SQL statement against the embedded database. Supports CREATE/DROP/ALTER TABLE, CREATE/DROP INDEX, INSERT, SELECT, UPDATE, DELETE, BEGIN, COMMIT, ROLLBACK."),
		mcp.WithString("sql", mcp.Description("The SQL statement to execute"), mcp.Required()),
	)
	listTablesTool := mcp.NewTool("list_tables",
		mcp.WithDescription("List every table currently defined in the database"),
	)
	describeTableTool := mcp.NewTool("describe_table",
		mcp.WithDescription("Get the column names and types of a table"),
		mcp.WithString("table", mcp.Description("The table name"), mcp.Required()),
	)

	srv.AddTool(queryTool, s.handleQuery)
	srv.AddTool(listTablesTool, s.handleListTables)
	srv.AddTool(describeTableTool, s.handleDescribeTable)
	return srv
}

// ServeStdio runs the server over stdio, the common entrypoint for an MCP
// client launching this as a subprocess.
func (s *Server) ServeStdio() error {
	return mcpserver.ServeStdio(s.MCPServer())
}

// Serve runs the server over streamable HTTP on addr at the /mcp endpoint.
func (s *Server) Serve(addr string) error {
	httpServer := mcpserver.NewStreamableHTTPServer(
		s.MCPServer(),
		mcpserver.WithEndpointPath("/mcp"),
	)
	return httpServer.Start(addr)
}

func (s *Server) handleQuery(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sql := request.GetString("sql", "")
	if strings.TrimSpace(sql) == "" {
		return mcp.NewToolResultError("sql parameter is required"), nil
	}

	cmd, err := s.tr.Translate(sql)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("parse failed: %v", err)), nil
	}

	res, err := s.db.Execute(cmd)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("execute failed: %v", err)), nil
	}

	if len(res.Rows) == 0 && res.RowsAffected == 0 && len(res.VectorHits) == 0 {
		return mcp.NewToolResultText("OK"), nil
	}

	var sb strings.Builder
	if len(res.Rows) > 0 {
		var cols []string
		for name := range res.Rows[0].Row {
			cols = append(cols, name)
		}
		sb.WriteString(strings.Join(cols, "\t"))
		sb.WriteString("\n")
		for _, r := range res.Rows {
			vals := make([]string, len(cols))
			for i, c := range cols {
				vals[i] = r.Row[c].String()
			}
			sb.WriteString(strings.Join(vals, "\t"))
			sb.WriteString("\n")
		}
	}
	sb.WriteString(fmt.Sprintf("\n(%d rows, %d affected)", len(res.Rows), res.RowsAffected))
	return mcp.NewToolResultText(sb.String()), nil
}

func (s *Server) handleListTables(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names := s.db.Tables()
	if len(names) == 0 {
		return mcp.NewToolResultText("(no tables)"), nil
	}
	return mcp.NewToolResultText(strings.Join(names, "\n")), nil
}

func (s *Server) handleDescribeTable(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := request.GetString("table", "")
	if name == "" {
		return mcp.NewToolResultError("table parameter is required"), nil
	}
	schema, ok := s.db.TableSchema(name)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("table %q not found", name)), nil
	}

	var sb strings.Builder
	sb.WriteString("column\ttype\n")
	for _, c := range schema.Columns {
		if c.Type.String() == "embedding" {
			sb.WriteString(fmt.Sprintf("%s\tembedding(%d)\n", c.Name, c.EmbeddingDim))
			continue
		}
		sb.WriteString(fmt.Sprintf("%s\t%s\n", c.Name, c.Type))
	}
	return mcp.NewToolResultText(sb.String()), nil
}

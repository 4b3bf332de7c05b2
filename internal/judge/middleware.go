package judge

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Middleware installs the judge in front of every tool handler. A nil
// service is entirely transparent. Denials surface as tool errors
// carrying the verdict's reason; allowed calls pass through unchanged.
func Middleware(s *Service) server.ToolHandlerMiddleware {
	return func(next server.ToolHandlerFunc) server.ToolHandlerFunc {
		return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			name := request.Params.Name
			if s == nil || !s.ShouldJudge(name) {
				return next(ctx, request)
			}
			if err := s.Check(ctx, name, request.GetArguments()); err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return next(ctx, request)
		}
	}
}

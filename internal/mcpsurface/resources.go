package mcpsurface

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jixoai/openspecui-kernel/internal/kernel"
)

// registerResources registers one static resource per workspace-wide
// NamedState kind: the kinds that take no key (schemas, change ids, project
// config, the status list). Reading a resource ensures the kind first so a
// cold client that reads before calling any tool still gets real data, not
// an empty snapshot.
func registerResources(s *server.MCPServer, k *kernel.Kernel) {
	addJSONResource(s, "openspec-kernel/state/schemas", "Schema List",
		func(ctx context.Context) (any, error) {
			return k.EnsureSchemas().WaitFirst(ctx)
		})

	addJSONResource(s, "openspec-kernel/state/change-ids", "Active Change Ids",
		func(ctx context.Context) (any, error) {
			return k.EnsureChangeIds().WaitFirst(ctx)
		})

	addJSONResource(s, "openspec-kernel/state/project-config", "Project Config",
		func(ctx context.Context) (any, error) {
			return k.EnsureProjectConfig().WaitFirst(ctx)
		})

	addJSONResource(s, "openspec-kernel/state/status-list", "Change Status List",
		func(ctx context.Context) (any, error) {
			return k.EnsureStatusList().WaitFirst(ctx)
		})
}

// addJSONResource registers a resource whose body is the JSON encoding of
// whatever fetch returns at read time.
func addJSONResource(s *server.MCPServer, uri, name string, fetch func(context.Context) (any, error)) {
	const mime = "application/json"

	res := mcp.Resource{
		URI:      uri,
		Name:     name,
		MIMEType: mime,
	}

	handler := func(ctx context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		waitCtx, cancel := waitCtx()
		defer cancel()
		v, err := fetch(waitCtx)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{mcp.TextResourceContents{
			URI:      uri,
			MIMEType: mime,
			Text:     string(encoded),
		}}, nil
	}

	s.AddResource(res, handler)
}

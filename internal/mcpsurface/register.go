// Package mcpsurface exposes the kernel's ensureX/getX operations as MCP
// tools: one mcp.NewTool plus handler per capability, registered with
// s.AddTool, plus a static mcp.Resource for each workspace-wide (unkeyed)
// NamedState kind, registered with s.AddResource. This is one of two
// auxiliary transports outside the kernel's own scope; the kernel itself
// only needs Go-level method calls.
package mcpsurface

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jixoai/openspecui-kernel/internal/kernel"
)

// RegisterAll registers every read-only ensureX tool and the workspace-wide
// resources against s.
func RegisterAll(s *server.MCPServer, k *kernel.Kernel) {
	registerResources(s, k)
	s.AddTool(mcp.NewTool("ensure_schemas",
		mcp.WithDescription("Ensure and return the workspace's schema list. Response: SchemaInfo[]."),
	), ensureSchemasTool(k))

	s.AddTool(mcp.NewTool("ensure_change_ids",
		mcp.WithDescription("Ensure and return the active (non-archived) change ids. Response: string[]."),
	), ensureChangeIdsTool(k))

	s.AddTool(mcp.NewTool("ensure_status_list",
		mcp.WithDescription("Ensure and return the aggregate status of every active change. Response: ChangeStatus[]."),
	), ensureStatusListTool(k))

	s.AddTool(mcp.NewTool("ensure_project_config",
		mcp.WithDescription("Ensure and return the workspace's config.yaml content, or null if absent. Response: {content:string|null}."),
	), ensureProjectConfigTool(k))

	s.AddTool(mcp.NewTool("ensure_schema_detail",
		mcp.WithDescription("Ensure and return one schema's normalized schema.yaml. Response: SchemaDetail."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Schema name")),
	), ensureSchemaDetailTool(k))

	s.AddTool(mcp.NewTool("ensure_schema_resolution",
		mcp.WithDescription("Ensure and return where a schema resolves from. Response: {path,source}."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Schema name")),
	), ensureSchemaResolutionTool(k))

	s.AddTool(mcp.NewTool("ensure_schema_files",
		mcp.WithDescription("Ensure and return the recursive file tree under a schema's directory. Response: ChangeFile[]."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Schema name")),
	), ensureSchemaFilesTool(k))

	s.AddTool(mcp.NewTool("ensure_schema_yaml",
		mcp.WithDescription("Ensure and return a schema's raw schema.yaml text, or null if absent. Response: {content:string|null}."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Schema name")),
	), ensureSchemaYamlTool(k))

	s.AddTool(mcp.NewTool("ensure_templates",
		mcp.WithDescription("Ensure and return the artifact template map, optionally scoped to one schema. Response: {artifactId:{path,source}}."),
		mcp.WithString("schema", mcp.Description("Schema name; omit for the unqualified template set")),
	), ensureTemplatesTool(k))

	s.AddTool(mcp.NewTool("ensure_template_contents",
		mcp.WithDescription("Ensure and return each template's file content alongside its path and source. Response: {artifactId:{content,path,source}}."),
		mcp.WithString("schema", mcp.Description("Schema name; omit for the unqualified template set")),
	), ensureTemplateContentsTool(k))

	s.AddTool(mcp.NewTool("ensure_change_metadata",
		mcp.WithDescription("Ensure and return a change's .openspec.yaml content, or null if absent. Response: {content:string|null}."),
		mcp.WithString("changeId", mcp.Required(), mcp.Description("Change id")),
	), ensureChangeMetadataTool(k))

	s.AddTool(mcp.NewTool("ensure_status",
		mcp.WithDescription("Ensure and return one change's status. Response: ChangeStatus."),
		mcp.WithString("changeId", mcp.Required(), mcp.Description("Change id")),
		mcp.WithString("schema", mcp.Description("Optional schema override")),
	), ensureStatusTool(k))

	s.AddTool(mcp.NewTool("ensure_instructions",
		mcp.WithDescription("Ensure and return one artifact's instructions for a change. Response: ArtifactInstructions."),
		mcp.WithString("changeId", mcp.Required(), mcp.Description("Change id")),
		mcp.WithString("artifact", mcp.Required(), mcp.Description("Artifact id")),
		mcp.WithString("schema", mcp.Description("Optional schema override")),
	), ensureInstructionsTool(k))

	s.AddTool(mcp.NewTool("ensure_apply_instructions",
		mcp.WithDescription("Ensure and return a change's apply instructions. Response: ApplyInstructions."),
		mcp.WithString("changeId", mcp.Required(), mcp.Description("Change id")),
		mcp.WithString("schema", mcp.Description("Optional schema override")),
	), ensureApplyInstructionsTool(k))

	s.AddTool(mcp.NewTool("ensure_artifact_output",
		mcp.WithDescription("Ensure and return one artifact output file's content, or null if it does not exist yet. Response: {content:string|null}."),
		mcp.WithString("changeId", mcp.Required(), mcp.Description("Change id")),
		mcp.WithString("outputPath", mcp.Required(), mcp.Description("Artifact output path, relative to the change directory")),
	), ensureArtifactOutputTool(k))

	s.AddTool(mcp.NewTool("ensure_glob_artifact_files",
		mcp.WithDescription("Ensure and return every file matching a glob artifact output path. Response: GlobFile[]."),
		mcp.WithString("changeId", mcp.Required(), mcp.Description("Change id")),
		mcp.WithString("outputPath", mcp.Required(), mcp.Description("Glob output path, relative to the change directory")),
	), ensureGlobArtifactFilesTool(k))
}

func waitCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("error marshaling response: %s", err)), nil
	}
	return mcp.NewToolResultText(string(encoded)), nil
}

func stringArg(request mcp.CallToolRequest, name string) string {
	args := request.GetArguments()
	v, _ := args[name].(string)
	return v
}

func ensureSchemasTool(k *kernel.Kernel) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		waitCtx, cancel := waitCtx()
		defer cancel()
		v, err := k.EnsureSchemas().WaitFirst(waitCtx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(v)
	}
}

func ensureChangeIdsTool(k *kernel.Kernel) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		waitCtx, cancel := waitCtx()
		defer cancel()
		v, err := k.EnsureChangeIds().WaitFirst(waitCtx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(v)
	}
}

func ensureStatusListTool(k *kernel.Kernel) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		waitCtx, cancel := waitCtx()
		defer cancel()
		v, err := k.EnsureStatusList().WaitFirst(waitCtx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(v)
	}
}

func ensureSchemaDetailTool(k *kernel.Kernel) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name := stringArg(request, "name")
		if name == "" {
			return mcp.NewToolResultError("name parameter is required"), nil
		}
		waitCtx, cancel := waitCtx()
		defer cancel()
		v, err := k.EnsureSchemaDetail(name).WaitFirst(waitCtx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(v)
	}
}

func ensureProjectConfigTool(k *kernel.Kernel) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		waitCtx, cancel := waitCtx()
		defer cancel()
		v, err := k.EnsureProjectConfig().WaitFirst(waitCtx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]*string{"content": v})
	}
}

func ensureSchemaResolutionTool(k *kernel.Kernel) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name := stringArg(request, "name")
		if name == "" {
			return mcp.NewToolResultError("name parameter is required"), nil
		}
		waitCtx, cancel := waitCtx()
		defer cancel()
		v, err := k.EnsureSchemaResolution(name).WaitFirst(waitCtx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(v)
	}
}

func ensureSchemaFilesTool(k *kernel.Kernel) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name := stringArg(request, "name")
		if name == "" {
			return mcp.NewToolResultError("name parameter is required"), nil
		}
		waitCtx, cancel := waitCtx()
		defer cancel()
		v, err := k.EnsureSchemaFiles(name).WaitFirst(waitCtx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(v)
	}
}

func ensureSchemaYamlTool(k *kernel.Kernel) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name := stringArg(request, "name")
		if name == "" {
			return mcp.NewToolResultError("name parameter is required"), nil
		}
		waitCtx, cancel := waitCtx()
		defer cancel()
		v, err := k.EnsureSchemaYaml(name).WaitFirst(waitCtx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]*string{"content": v})
	}
}

func ensureTemplateContentsTool(k *kernel.Kernel) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		schema := stringArg(request, "schema")
		waitCtx, cancel := waitCtx()
		defer cancel()
		v, err := k.EnsureSchemaTemplateContents(schema).WaitFirst(waitCtx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(v)
	}
}

func ensureChangeMetadataTool(k *kernel.Kernel) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		changeID := stringArg(request, "changeId")
		if changeID == "" {
			return mcp.NewToolResultError("changeId parameter is required"), nil
		}
		waitCtx, cancel := waitCtx()
		defer cancel()
		v, err := k.EnsureChangeMetadata(changeID).WaitFirst(waitCtx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]*string{"content": v})
	}
}

func ensureTemplatesTool(k *kernel.Kernel) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		schema := stringArg(request, "schema")
		waitCtx, cancel := waitCtx()
		defer cancel()
		v, err := k.EnsureSchemaTemplates(schema).WaitFirst(waitCtx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(v)
	}
}

func ensureStatusTool(k *kernel.Kernel) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		changeID := stringArg(request, "changeId")
		if changeID == "" {
			return mcp.NewToolResultError("changeId parameter is required"), nil
		}
		schema := stringArg(request, "schema")
		waitCtx, cancel := waitCtx()
		defer cancel()
		v, err := k.EnsureChangeStatus(changeID, schema).WaitFirst(waitCtx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(v)
	}
}

func ensureInstructionsTool(k *kernel.Kernel) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		changeID := stringArg(request, "changeId")
		artifact := stringArg(request, "artifact")
		if changeID == "" || artifact == "" {
			return mcp.NewToolResultError("changeId and artifact parameters are required"), nil
		}
		schema := stringArg(request, "schema")
		waitCtx, cancel := waitCtx()
		defer cancel()
		v, err := k.EnsureChangeInstructions(changeID, artifact, schema).WaitFirst(waitCtx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(v)
	}
}

func ensureApplyInstructionsTool(k *kernel.Kernel) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		changeID := stringArg(request, "changeId")
		if changeID == "" {
			return mcp.NewToolResultError("changeId parameter is required"), nil
		}
		schema := stringArg(request, "schema")
		waitCtx, cancel := waitCtx()
		defer cancel()
		v, err := k.EnsureChangeApplyInstructions(changeID, schema).WaitFirst(waitCtx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(v)
	}
}

func ensureArtifactOutputTool(k *kernel.Kernel) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		changeID := stringArg(request, "changeId")
		outputPath := stringArg(request, "outputPath")
		if changeID == "" || outputPath == "" {
			return mcp.NewToolResultError("changeId and outputPath parameters are required"), nil
		}
		waitCtx, cancel := waitCtx()
		defer cancel()
		v, err := k.EnsureArtifactOutput(changeID, outputPath).WaitFirst(waitCtx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]*string{"content": v})
	}
}

func ensureGlobArtifactFilesTool(k *kernel.Kernel) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		changeID := stringArg(request, "changeId")
		outputPath := stringArg(request, "outputPath")
		if changeID == "" || outputPath == "" {
			return mcp.NewToolResultError("changeId and outputPath parameters are required"), nil
		}
		waitCtx, cancel := waitCtx()
		defer cancel()
		v, err := k.EnsureGlobArtifactFiles(changeID, outputPath).WaitFirst(waitCtx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(v)
	}
}

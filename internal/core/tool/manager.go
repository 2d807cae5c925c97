package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/AxlesAI/axles-voice-service/pkg/logger"
	"go.uber.org/zap"
)

var ErrUnknownTool = errors.New("unknown tool")

/*
Tool Manager - registry pattern

Schemas live in schemas.go. Executors are bound by whoever owns the call
state (the call orchestrator), so this package stays free of domain imports:

	m.RegisterTool(&ToolDefinition{
		Name:        ToolNameSearchInventory,
		Description: "...",
		Parameters:  SearchInventorySchema,
		Executor:    svc.searchInventory,
	})
*/

// ToolExecutorFunc runs one tool call for a session and returns the spoken reply.
// A non-nil error means a system failure; the reply is still said to the caller.
type ToolExecutorFunc func(ctx context.Context, sessionID string, arguments json.RawMessage) (string, error)

// ToolDefinition defines a tool with its metadata and execution logic
type ToolDefinition struct {
	Name        string                 // Tool name (e.g., "search_inventory")
	Description string                 // Tool description for the model
	Parameters  map[string]interface{} // JSON schema of the arguments
	Executor    ToolExecutorFunc
}

// ToolManager manages tool definitions, routing, and execution
type ToolManager struct {
	mu       sync.RWMutex
	registry map[string]*ToolDefinition
}

func NewToolManager() *ToolManager {
	return &ToolManager{registry: make(map[string]*ToolDefinition)}
}

// RegisterTool registers or replaces a tool
func (m *ToolManager) RegisterTool(tool *ToolDefinition) {
	m.mu.Lock()
	m.registry[tool.Name] = tool
	m.mu.Unlock()
	logger.Base().Debug("Registered tool", zap.String("name", tool.Name))
}

// Names returns the registered tool names in sorted order.
func (m *ToolManager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.registry))
	for name := range m.registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns function definitions in the flat realtime-API shape.
// With allowed set, only those tools are returned, in that order; unknown
// names are skipped. With no allowed names every tool is returned.
func (m *ToolManager) Definitions(allowed ...string) []map[string]interface{} {
	if len(allowed) == 0 {
		allowed = m.Names()
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	tools := make([]map[string]interface{}, 0, len(allowed))
	for _, name := range allowed {
		tool, ok := m.registry[name]
		if !ok {
			logger.Base().Warn("Tool not found in registry", zap.String("tool", name))
			continue
		}
		tools = append(tools, map[string]interface{}{
			"type":        "function",
			"name":        tool.Name,
			"description": tool.Description,
			"parameters":  tool.Parameters,
		})
	}
	return tools
}

// ExecuteTool routes a call to the registered executor.
func (m *ToolManager) ExecuteTool(ctx context.Context, toolName, sessionID string, arguments json.RawMessage) (string, error) {
	m.mu.RLock()
	tool, ok := m.registry[toolName]
	m.mu.RUnlock()
	if !ok || tool.Executor == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, toolName)
	}

	if len(arguments) == 0 || string(arguments) == "null" {
		arguments = json.RawMessage("{}")
	}

	logger.ForSession(sessionID).Info("Executing tool", zap.String("tool", toolName))
	return tool.Executor(ctx, sessionID, arguments)
}

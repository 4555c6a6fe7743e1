package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/apptflow-poc/server/internal/agent/appointments"
)

// Tool names bound to the agent model.
const (
	ToolWebSearch         = "web_search"
	ToolListAppointments  = "list_appointments"
	ToolCancelAppointment = "cancel_appointment"
)

// NewQueryTools builds the tool set for the agent loop. Tool failures are
// reported inside the tool output (see the Error fields) so the model can
// react instead of the run aborting.
func NewQueryTools(src appointments.Source, search SearchProvider) []tool.BaseTool {
	return []tool.BaseTool{
		createWebSearchTool(search),
		createListAppointmentsTool(src),
		createCancelAppointmentTool(src),
	}
}

// GetToolInfos collects ToolInfo from each tool for model binding.
func GetToolInfos(ctx context.Context, tools []tool.BaseTool) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("get tool info: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

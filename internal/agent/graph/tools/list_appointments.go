package tools

import (
	"context"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/apptflow-poc/server/internal/agent/appointments"
	"github.com/apptflow-poc/server/internal/agent/model"
	logx "github.com/apptflow-poc/server/pkg/logger"
)

type ListAppointmentsInput struct {
	// IncludePast is accepted for forward compatibility; the static source
	// only serves upcoming appointments.
	IncludePast bool `json:"include_past,omitempty"`
}

type ListAppointmentsOutput struct {
	Appointments []model.Appointment `json:"appointments"`
	Total        int                 `json:"total"`
	Error        string              `json:"error,omitempty"`
}

func createListAppointmentsTool(src appointments.Source) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolListAppointments,
			Desc: "Retrieve the customer's scheduled appointments with id, time, and service description. Use this whenever the customer asks about their appointments.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"include_past": {
					Type: "boolean",
					Desc: "Whether to include past appointments (default: false)",
				},
			}),
		},
		func(ctx context.Context, in *ListAppointmentsInput) (*ListAppointmentsOutput, error) {
			appts, err := src.Fetch(ctx)
			if err != nil {
				logx.Warn().Err(err).Msg("appointment source failed inside tool call")
				return &ListAppointmentsOutput{Error: "appointment source failed: " + err.Error()}, nil
			}
			return &ListAppointmentsOutput{Appointments: appts, Total: len(appts)}, nil
		},
	)
}

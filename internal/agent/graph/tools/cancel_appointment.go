package tools

import (
	"context"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/apptflow-poc/server/internal/agent/appointments"
	logx "github.com/apptflow-poc/server/pkg/logger"
)

type CancelAppointmentInput struct {
	AppointmentID int `json:"appointment_id"`
}

type CancelAppointmentOutput struct {
	Receipt string `json:"receipt,omitempty"`
	Error   string `json:"error,omitempty"`
}

func createCancelAppointmentTool(src appointments.Source) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolCancelAppointment,
			Desc: "Cancel a scheduled appointment by id. Only call this after the customer has confirmed which appointment to cancel.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"appointment_id": {
					Type:     "number",
					Desc:     "Appointment id from list_appointments. Must be an exact id.",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *CancelAppointmentInput) (*CancelAppointmentOutput, error) {
			if in.AppointmentID <= 0 {
				return &CancelAppointmentOutput{Error: "appointment_id must be a positive id"}, nil
			}
			receipt, err := src.Cancel(ctx, in.AppointmentID)
			if err != nil {
				logx.Warn().Err(err).Int("appointment_id", in.AppointmentID).Msg("cancel failed inside tool call")
				return &CancelAppointmentOutput{Error: err.Error()}, nil
			}
			return &CancelAppointmentOutput{Receipt: receipt}, nil
		},
	)
}

package permission

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"golden/internal/request/models"
	id "golden/pkg/domain"
)

var testTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func oneOf[T any](values []T) gopter.Gen {
	consts := make([]any, len(values))
	for i, v := range values {
		consts[i] = v
	}
	return gen.OneConstOf(consts...)
}

func genInput() gopter.Gen {
	return gopter.CombineGens(
		oneOf(models.Statuses()),
		oneOf(models.Assignees()),
		oneOf(models.Origins()),
		oneOf([]models.ComplianceStatus{models.ComplianceUnset, models.ComplianceActive, models.ComplianceBlocked}),
	).Map(func(vals []any) Input {
		return Input{
			Status:           vals[0].(models.Status),
			AssignedTo:       vals[1].(models.Assignee),
			Origin:           vals[2].(models.Origin),
			ComplianceStatus: vals[3].(models.ComplianceStatus),
		}
	})
}

func TestEvaluate_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("evaluation is deterministic", prop.ForAll(
		func(role id.Role, input Input) bool {
			return Evaluate(role, input) == Evaluate(role, input)
		},
		oneOf(id.Roles()),
		genInput(),
	))

	properties.Property("origin never changes the outcome", prop.ForAll(
		func(role id.Role, input Input, other models.Origin) bool {
			moved := input
			moved.Origin = other
			return Evaluate(role, input) == Evaluate(role, moved)
		},
		oneOf(id.Roles()),
		genInput(),
		oneOf(models.Origins()),
	))

	properties.Property("data entry sees exactly what it cannot edit", prop.ForAll(
		func(input Input) bool {
			c := Evaluate(id.RoleDataEntry, input)
			return c.CanView == !c.CanEdit && !c.CanApproveReject && !c.CanComplianceAction
		},
		genInput(),
	))

	properties.Property("terminal records are never editable or actionable", prop.ForAll(
		func(role id.Role, input Input) bool {
			if !input.Status.IsTerminal() {
				return true
			}
			c := Evaluate(role, input)
			return !c.CanEdit && !c.CanApproveReject && !c.CanComplianceAction
		},
		oneOf(id.Roles()),
		genInput(),
	))

	properties.TestingRun(t)
}

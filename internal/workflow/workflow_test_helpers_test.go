package workflow

import (
	"go.temporal.io/sdk/testsuite"

	"github.com/edvin/metering/internal/activity"
)

// registerActivities registers the activity structs with the test workflow
// environment. Activities are mocked with OnActivity, but the framework still
// needs their signatures to (de)serialize parameters and results.
func registerActivities(env *testsuite.TestWorkflowEnvironment) {
	env.RegisterActivity(&activity.Billing{})
}

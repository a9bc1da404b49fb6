package s3store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
)

func TestIsExistsError(t *testing.T) {
	precondition := &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "At least one of the pre-conditions you specified did not hold"}
	conflict := &smithy.GenericAPIError{Code: "ConditionalRequestConflict"}
	denied := &smithy.GenericAPIError{Code: "AccessDenied"}

	assert.True(t, isExistsError(precondition))
	assert.True(t, isExistsError(fmt.Errorf("operation error S3: PutObject: %w", conflict)))
	assert.False(t, isExistsError(denied))
	assert.False(t, isExistsError(errors.New("connection reset")))
}

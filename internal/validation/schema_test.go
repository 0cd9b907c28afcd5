package validation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const validMessageJSON = `{
  "id": "1700000000000",
  "type": "user",
  "content": "show me last month's sales",
  "timestamp": 1700000000000
}`

const invalidMessageJSON = `{
  "id": "",
  "type": "oracle",
  "content": "hello"
}`

func TestValidateMessageBytes_Valid(t *testing.T) {
	errs := ValidateMessageBytes([]byte(validMessageJSON))
	require.Empty(t, errs, "valid message should have no errors")
}

func TestValidateMessageBytes_Invalid(t *testing.T) {
	errs := ValidateMessageBytes([]byte(invalidMessageJSON))
	require.NotEmpty(t, errs, "invalid message should have errors")

	joined := joinErrs(errs)
	require.Contains(t, joined, "timestamp")
	require.Contains(t, joined, "type")
}

func TestValidateMessageBytes_ParseError(t *testing.T) {
	errs := ValidateMessageBytes([]byte("{not json"))
	require.Len(t, errs, 1)
	require.Contains(t, errs[0], "JSON parse error")
}

func TestValidateMessage_ExtraFieldsAllowed(t *testing.T) {
	errs := ValidateMessageBytes([]byte(`{
	  "id": "assistant-2",
	  "type": "assistant",
	  "content": "done",
	  "timestamp": 5,
	  "model": "sonnet"
	}`))
	require.Empty(t, errs)
}

func TestValidateMessage_WrongTopLevelType(t *testing.T) {
	errs := ValidateMessageBytes([]byte(`["not", "an", "object"]`))
	require.NotEmpty(t, errs)
}

func joinErrs(errs []string) string {
	result := ""
	for _, e := range errs {
		result += e + "\n"
	}
	return result
}

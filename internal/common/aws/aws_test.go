package aws

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildEmail(t *testing.T) {
	in := BuildEmail("from@example.com", "to@example.com", "Subject", "text", "<p>html</p>")

	assert.Equal(t, "from@example.com", aws.ToString(in.Source))
	assert.Equal(t, []string{"to@example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, "Subject", aws.ToString(in.Message.Subject.Data))
	assert.Equal(t, "text", aws.ToString(in.Message.Body.Text.Data))
	require.NotNil(t, in.Message.Body.Html)
	assert.Equal(t, "<p>html</p>", aws.ToString(in.Message.Body.Html.Data))

	plain := BuildEmail("a@b.c", "d@e.f", "s", "t", "")
	assert.Nil(t, plain.Message.Body.Html)
}

func TestBuildSMS(t *testing.T) {
	in := BuildSMS("+15555550100", "hello")

	assert.Equal(t, "+15555550100", aws.ToString(in.PhoneNumber))
	assert.Equal(t, "hello", aws.ToString(in.Message))
	assert.Equal(t, "Transactional", aws.ToString(in.MessageAttributes["AWS.SNS.SMS.SMSType"].StringValue))
}

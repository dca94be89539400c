package aws

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublicURL(t *testing.T) {
	assert.Equal(t,
		"https://med-reports.s3.us-east-2.amazonaws.com/reports/u1/1700000000000_CBC.pdf",
		PublicURL("med-reports", "us-east-2", "reports/u1/1700000000000_CBC.pdf"))
}

func TestPublicURLEscapesKey(t *testing.T) {
	assert.Equal(t,
		"https://med-reports.s3.us-east-2.amazonaws.com/reports/u1/1_Lipid%3F%20%2350%25.pdf",
		PublicURL("med-reports", "us-east-2", "reports/u1/1_Lipid? #50%.pdf"))
	assert.Equal(t,
		"https://med-reports.s3.us-east-2.amazonaws.com/reports/a.pdf",
		PublicURL("med-reports", "us-east-2", "/reports/a.pdf"))
}

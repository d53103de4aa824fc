package oss

import (
	"testing"

	"github.com/IceFireDB/IceFireDB-SWGateway/driver"
	"github.com/stretchr/testify/assert"
)

func TestNewClient_RequiresBucket(t *testing.T) {
	_, err := NewClient(Options{})
	assert.Error(t, err)
}

func TestNewClient_RequiresBothCredentials(t *testing.T) {
	_, err := NewClient(Options{BucketName: "b", AWSaccessKeyID: "id"})
	assert.Error(t, err)

	_, err = NewClient(Options{BucketName: "b", AWSsecretAccessKey: "secret"})
	assert.Error(t, err)
}

func TestOptionsFrom(t *testing.T) {
	opts := optionsFrom(&driver.Config{OSS: driver.OSSConfig{
		Endpoint:  "http://localhost:9000",
		Bucket:    "swgateway",
		Region:    "foo",
		AccessKey: "id",
		SecretKey: "secret",
		PathStyle: true,
	}})
	assert.Equal(t, Options{
		BucketName:             "swgateway",
		Region:                 "foo",
		AWSaccessKeyID:         "id",
		AWSsecretAccessKey:     "secret",
		CustomEndpoint:         "http://localhost:9000",
		UsePathStyleAddressing: true,
	}, opts)
}

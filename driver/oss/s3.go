package oss

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	awss3 "github.com/aws/aws-sdk-go/service/s3"
	"github.com/philippgille/gokv/util"

	"github.com/IceFireDB/IceFireDB-SWGateway/driver"
)

// Client stores raw values as objects in one S3 bucket.
type Client struct {
	c          *awss3.S3
	bucketName string
}

// Set stores the given value for the given key.
// The key must not be "" and the value must not be nil.
func (c Client) Set(ctx context.Context, k string, v []byte) error {
	if err := util.CheckKeyAndValue(k, v); err != nil {
		return err
	}

	pubObjectInput := awss3.PutObjectInput{
		Body:   bytes.NewReader(v),
		Bucket: &c.bucketName,
		Key:    &k,
	}
	_, err := c.c.PutObjectWithContext(ctx, &pubObjectInput)
	return err
}

// Get retrieves the stored value for the given key.
// If no value is found it returns driver.ErrNotFound.
func (c Client) Get(ctx context.Context, k string) ([]byte, error) {
	if err := util.CheckKey(k); err != nil {
		return nil, err
	}

	getObjectInput := awss3.GetObjectInput{
		Bucket: &c.bucketName,
		Key:    &k,
	}
	getObjectOutput, err := c.c.GetObjectWithContext(ctx, &getObjectInput)
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == awss3.ErrCodeNoSuchKey {
			return nil, driver.ErrNotFound
		}
		return nil, err
	}
	if getObjectOutput.Body == nil {
		return nil, driver.ErrNotFound
	}
	defer getObjectOutput.Body.Close()
	return io.ReadAll(getObjectOutput.Body)
}

// Delete deletes the stored value for the given key.
// Deleting a non-existing key-value pair does NOT lead to an error.
// The key must not be "".
func (c Client) Delete(ctx context.Context, k string) error {
	if err := util.CheckKey(k); err != nil {
		return err
	}

	deleteObjectInput := awss3.DeleteObjectInput{
		Bucket: &c.bucketName,
		Key:    &k,
	}
	_, err := c.c.DeleteObjectWithContext(ctx, &deleteObjectInput)
	return err
}

// List returns every key below prefix.
func (c Client) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	input := awss3.ListObjectsV2Input{
		Bucket: &c.bucketName,
		Prefix: aws.String(prefix),
	}
	err := c.c.ListObjectsV2PagesWithContext(ctx, &input, func(page *awss3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			keys = append(keys, aws.StringValue(obj.Key))
		}
		return true
	})
	return keys, err
}

// Options are the options for the S3 client.
type Options struct {
	// Name of the S3 bucket.
	// The bucket is automatically created if it doesn't exist yet.
	BucketName string
	// Region of the S3 service you want to use.
	// Optional (read from shared config file or environment variable if not set).
	// Environment variable: "AWS_REGION".
	//
	// Note: A region is also required when using an S3-compatible cloud service and even when using a self-hosted solution.
	// Example for a locally running Minio server: "foo" (any value works).
	Region string
	// AWS access key ID (part of the credentials).
	// Optional (read from shared credentials file or environment variable if not set).
	AWSaccessKeyID string
	// AWS secret access key (part of the credentials).
	// Optional (read from shared credentials file or environment variable if not set).
	AWSsecretAccessKey string
	// CustomEndpoint allows you to set a custom S3 service endpoint.
	// Example for a locally running Minio server: "http://localhost:9000".
	// If you don't include "http://", then HTTPS (with TLS) will be used.
	CustomEndpoint string
	// Self-hosted services like a Minio server running on localhost usually
	// only work with path-style addressing.
	UsePathStyleAddressing bool
}

// NewClient creates a new S3 client.
func NewClient(options Options) (Client, error) {
	result := Client{}

	// Precondition check
	if options.BucketName == "" {
		return result, errors.New("The BucketName in the options must not be empty")
	}

	// Set credentials only if set in the options.
	// If not set, the SDK uses the shared credentials file or environment variables, which is the preferred way.
	// Return an error if only one of the values is set.
	var creds *credentials.Credentials
	if (options.AWSaccessKeyID != "" && options.AWSsecretAccessKey == "") || (options.AWSaccessKeyID == "" && options.AWSsecretAccessKey != "") {
		return result, errors.New("When passing credentials via options, you need to set BOTH AWSaccessKeyID AND AWSsecretAccessKey")
	} else if options.AWSaccessKeyID != "" {
		creds = credentials.NewStaticCredentials(options.AWSaccessKeyID, options.AWSsecretAccessKey, "")
	}

	config := aws.NewConfig()
	if options.Region != "" {
		config = config.WithRegion(options.Region)
	}
	if creds != nil {
		config = config.WithCredentials(creds)
	}
	if options.CustomEndpoint != "" {
		config = config.WithEndpoint(options.CustomEndpoint)
	}
	if options.UsePathStyleAddressing {
		config = config.WithS3ForcePathStyle(true)
	}
	sessionOpts := session.Options{
		SharedConfigState: session.SharedConfigEnable,
	}
	sessionOpts.Config.MergeIn(config)
	sess, err := session.NewSessionWithOptions(sessionOpts)
	if err != nil {
		return result, err
	}
	svc := awss3.New(sess)

	createBucketInput := awss3.CreateBucketInput{
		Bucket: aws.String(options.BucketName),
	}
	if err := createBucket(options.CustomEndpoint == "", svc, createBucketInput, options.BucketName); err != nil {
		return result, err
	}

	result.c = svc
	result.bucketName = options.BucketName
	return result, nil
}

// createBucket creates the bucket if it doesn't exist yet.
//
// Amazon S3 answers ErrCodeBucketAlreadyOwnedByYou for a bucket we own, other
// S3-compatible services answer BucketAlreadyExists, which could also mean that
// someone else owns it, so for those the bucket list is checked first.
func createBucket(origS3 bool, svc *awss3.S3, createBucketInput awss3.CreateBucketInput, bucketName string) error {
	if origS3 {
		_, err := svc.CreateBucket(&createBucketInput)
		if err != nil {
			aerr, ok := err.(awserr.Error)
			if !ok || aerr.Code() != awss3.ErrCodeBucketAlreadyOwnedByYou {
				return err
			}
		}
		return nil
	}

	listBucketsOutput, err := svc.ListBuckets(&awss3.ListBucketsInput{})
	if err != nil {
		return err
	}
	for _, bucket := range listBucketsOutput.Buckets {
		if aws.StringValue(bucket.Name) == bucketName {
			return nil
		}
	}
	_, err = svc.CreateBucket(&createBucketInput)
	return err
}

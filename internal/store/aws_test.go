package store

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method string
	path   string
	header http.Header
	body   string
}

type awsStub struct {
	*httptest.Server
	mu       sync.Mutex
	requests []recorded
}

func newAWSStub(t *testing.T, status int, body string) *awsStub {
	t.Helper()
	s := &awsStub{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.requests = append(s.requests, recorded{r.Method, r.URL.Path, r.Header.Clone(), string(data)})
		s.mu.Unlock()

		w.Header().Set("Content-Type", "text/xml")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *awsStub) recorded() []recorded {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recorded(nil), s.requests...)
}

func newCloudFrontClient(url string) *cloudfront.Client {
	return cloudfront.New(cloudfront.Options{
		Region:           "us-east-1",
		Credentials:      aws.AnonymousCredentials{},
		EndpointResolver: cloudfront.EndpointResolverFromURL(url),
		RetryMaxAttempts: 1,
	})
}

const invalidationBody = `<?xml version="1.0" encoding="UTF-8"?>
<Invalidation xmlns="http://cloudfront.amazonaws.com/doc/2020-05-31/"><Id>I2J0I21PCUYOIK</Id><Status>InProgress</Status></Invalidation>`

func TestCloudFrontInvalidator(t *testing.T) {
	s := newAWSStub(t, http.StatusCreated, invalidationBody)
	inv := &CloudFrontInvalidator{Client: newCloudFrontClient(s.URL), Distribution: "E2QWRUHEXAMPLE"}

	err := inv.Invalidate(context.Background(), []string{"/images/output.png", "/images/output.png", ""})
	require.NoError(t, err)

	reqs := s.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].method)
	assert.Equal(t, "/2020-05-31/distribution/E2QWRUHEXAMPLE/invalidation", reqs[0].path)
	assert.Contains(t, reqs[0].body, "<Quantity>1</Quantity>")
	assert.Contains(t, reqs[0].body, "<Path>/images/output.png</Path>")
	assert.Contains(t, reqs[0].body, "<CallerReference>sdgen-")
}

func TestCloudFrontInvalidatorNothingToDo(t *testing.T) {
	s := newAWSStub(t, http.StatusCreated, invalidationBody)
	inv := &CloudFrontInvalidator{Client: newCloudFrontClient(s.URL), Distribution: "E2QWRUHEXAMPLE"}

	require.NoError(t, inv.Invalidate(context.Background(), nil))
	assert.Empty(t, s.recorded())
}

func TestCloudFrontInvalidatorFailure(t *testing.T) {
	s := newAWSStub(t, http.StatusNotFound, `<?xml version="1.0"?>
<ErrorResponse><Error><Type>Sender</Type><Code>NoSuchDistribution</Code><Message>missing</Message></Error></ErrorResponse>`)
	inv := &CloudFrontInvalidator{Client: newCloudFrontClient(s.URL), Distribution: "EMISSING"}

	err := inv.Invalidate(context.Background(), []string{"/output.png"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EMISSING")
}

func TestS3Uploader(t *testing.T) {
	s := newAWSStub(t, http.StatusOK, "")
	client := s3.New(s3.Options{
		Region:      "us-east-1",
		Credentials: aws.AnonymousCredentials{},
		EndpointResolver: s3.EndpointResolverFromURL(s.URL, func(e *aws.Endpoint) {
			e.HostnameImmutable = true
		}),
		UsePathStyle:     true,
		RetryMaxAttempts: 1,
	})
	u := &S3Uploader{Client: client, Bucket: "images", Prefix: "daily/"}

	location, err := u.Upload(context.Background(), UploadParams{
		Name:        "output.png",
		Data:        []byte("png"),
		ContentType: "image/png",
		Metadata:    map[string]string{"seed": "42"},
	})
	require.NoError(t, err)
	assert.Equal(t, "s3://images/daily/output.png", location)

	reqs := s.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPut, reqs[0].method)
	assert.Equal(t, "/images/daily/output.png", reqs[0].path)
	assert.Equal(t, "image/png", reqs[0].header.Get("Content-Type"))
	assert.Equal(t, "42", reqs[0].header.Get("X-Amz-Meta-Seed"))
	assert.Equal(t, "png", reqs[0].body)
}

package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bnema/tubeaudit/internal/domain"
)

type mockObjectAPI struct {
	mock.Mock
}

func (m *mockObjectAPI) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, in)
	if out, ok := args.Get(0).(*s3.PutObjectOutput); ok {
		return out, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockObjectAPI) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(ctx, in)
	if out, ok := args.Get(0).(*s3.DeleteObjectOutput); ok {
		return out, args.Error(1)
	}
	return nil, args.Error(1)
}

type fakePresigner struct {
	in      *s3.GetObjectInput
	expires time.Duration
}

func (f *fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.in = in
	opts := s3.PresignOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	f.expires = opts.Expires
	return &v4.PresignedHTTPRequest{URL: "https://bucket.s3.example/" + *in.Key + "?X-Amz-Signature=abc", Method: "GET"}, nil
}

func TestStore_Put(t *testing.T) {
	api := &mockObjectAPI{}
	s := NewWithClient(api, &fakePresigner{}, "audits-bucket")

	api.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		body, _ := io.ReadAll(in.Body)
		return *in.Bucket == "audits-bucket" &&
			*in.Key == "audits/j1/report.md" &&
			*in.ContentType == "text/markdown" &&
			*in.ContentLength == 8 &&
			string(body) == "# Audit\n"
	})).Return(&s3.PutObjectOutput{}, nil)

	loc, n, err := s.Put(context.Background(), "audits/j1/report.md", strings.NewReader("# Audit\n"), "text/markdown")
	require.NoError(t, err)
	assert.Equal(t, "audits/j1/report.md", loc)
	assert.Equal(t, int64(8), n)
	api.AssertExpectations(t)
}

func TestStore_PutError(t *testing.T) {
	api := &mockObjectAPI{}
	s := NewWithClient(api, &fakePresigner{}, "b")
	api.On("PutObject", mock.Anything, mock.Anything).Return(nil, errors.New("access denied"))

	_, _, err := s.Put(context.Background(), "k", strings.NewReader("x"), "")
	assert.ErrorContains(t, err, "access denied")
}

func TestStore_Delete(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"deleted", nil, false},
		{"missing key is fine", &s3types.NoSuchKey{}, false},
		{"untyped not found code", &smithy.GenericAPIError{Code: "NoSuchKey", Message: "gone"}, false},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, true},
		{"other failure", errors.New("throttled"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &mockObjectAPI{}
			s := NewWithClient(api, &fakePresigner{}, "b")
			api.On("DeleteObject", mock.Anything, mock.MatchedBy(func(in *s3.DeleteObjectInput) bool {
				return *in.Bucket == "b" && *in.Key == "audits/j1/raw_data.json"
			})).Return(&s3.DeleteObjectOutput{}, tt.err)

			err := s.Delete(context.Background(), "audits/j1/raw_data.json")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStore_SignedURL(t *testing.T) {
	p := &fakePresigner{}
	s := NewWithClient(&mockObjectAPI{}, p, "b")

	a := &domain.Artifact{
		ID:       "a1",
		JobID:    "0123456789abcdef",
		Type:     domain.ArtifactExcelReport,
		Location: "audits/0123456789abcdef/audit_report.xlsx",
	}
	u, err := s.SignedURL(context.Background(), a, 10*time.Minute)
	require.NoError(t, err)

	assert.Contains(t, u, "X-Amz-Signature")
	assert.Equal(t, 10*time.Minute, p.expires)
	assert.Equal(t, a.Location, *p.in.Key)
	assert.Equal(t, `attachment; filename="audit_01234567_audit_report.xlsx"`, *p.in.ResponseContentDisposition)
	assert.Equal(t, domain.ArtifactExcelReport.ContentType(), *p.in.ResponseContentType)
}

package worker

import (
	"errors"
	"testing"

	"github.com/jonesrussell/crawlctl/internal/apierrors"
	"github.com/jonesrussell/crawlctl/internal/domain"
	"github.com/jonesrussell/crawlctl/internal/errkind"
)

func TestClassify_RunError(t *testing.T) {
	stack := "goroutine 1 [running]:"
	status := 503
	err := &RunError{Category: errkind.Network, Message: "upstream unavailable", Stack: &stack, HTTPStatus: &status}

	f := classify(err)

	if f.Category != string(errkind.Network) {
		t.Errorf("Category = %q, want %q", f.Category, errkind.Network)
	}
	if f.Message != "upstream unavailable" {
		t.Errorf("Message = %q", f.Message)
	}
	if f.Stack == nil || *f.Stack != stack {
		t.Errorf("Stack = %v, want %q", f.Stack, stack)
	}
	if f.HTTPStatus == nil || *f.HTTPStatus != status {
		t.Errorf("HTTPStatus = %v, want %d", f.HTTPStatus, status)
	}
}

func TestClassify_HTTPErrorByStatus(t *testing.T) {
	cases := []struct {
		status int
		want   errkind.Category
	}{
		{429, errkind.RateLimit},
		{503, errkind.ServerError},
		{404, errkind.NotFound},
		{401, errkind.AuthError},
		{418, errkind.ClientError},
	}
	for _, tc := range cases {
		err := &apierrors.HTTPError{StatusCode: tc.status, Status: "status", Message: "origin said no"}

		f := classify(err)

		if f.Category != string(tc.want) {
			t.Errorf("status %d: Category = %q, want %q", tc.status, f.Category, tc.want)
		}
		if f.HTTPStatus == nil || *f.HTTPStatus != tc.status {
			t.Errorf("status %d: HTTPStatus = %v", tc.status, f.HTTPStatus)
		}
	}
}

func TestClassify_PlainError(t *testing.T) {
	f := classify(errors.New("boom"))

	if f.Category != string(errkind.Unknown) {
		t.Errorf("Category = %q, want %q", f.Category, errkind.Unknown)
	}
	if f.Message != "boom" {
		t.Errorf("Message = %q, want %q", f.Message, "boom")
	}
}

func TestBuildVariableContext(t *testing.T) {
	websiteID := "site-1"
	j := &domain.Job{
		ID:         "job-1",
		WebsiteRef: &websiteID,
		Variables:  domain.JSONMap{"region": "us-east"},
	}

	ctx := buildVariableContext(j)

	if got := ctx.Variables["region"]; got != "us-east" {
		t.Errorf("Variables[region] = %v, want us-east", got)
	}
	if got := ctx.Metadata["job_id"]; got != "job-1" {
		t.Errorf("Metadata[job_id] = %v, want job-1", got)
	}
	if got := ctx.Metadata["website_id"]; got != "site-1" {
		t.Errorf("Metadata[website_id] = %v, want site-1", got)
	}
}

func TestBuildVariableContext_NoWebsite(t *testing.T) {
	j := &domain.Job{ID: "job-2"}

	ctx := buildVariableContext(j)

	if _, ok := ctx.Metadata["website_id"]; ok {
		t.Error("Metadata[website_id] should be absent for a website-less job")
	}
}

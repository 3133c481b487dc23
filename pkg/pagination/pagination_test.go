package pagination

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestFromContext(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"defaults", "", DefaultLimit, 0},
		{"limit and offset", "limit=50&offset=10", 50, 10},
		{"page and page_size", "page=3&page_size=25", 25, 50},
		{"page without size", "page=2", DefaultLimit, DefaultLimit},
		{"first page", "page=1&page_size=5", 5, 0},
		{"explicit offset wins over page", "page=4&limit=10&offset=3", 10, 3},
		{"limit capped", "limit=500", MaxLimit, 0},
		{"negative offset", "offset=-5", DefaultLimit, 0},
		{"garbage", "limit=ten&offset=x", DefaultLimit, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/doctors?"+tt.query, nil)
			c := e.NewContext(req, httptest.NewRecorder())

			p := FromContext(c)
			if p.Limit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", p.Limit, tt.wantLimit)
			}
			if p.Offset != tt.wantOffset {
				t.Errorf("offset = %d, want %d", p.Offset, tt.wantOffset)
			}
		})
	}
}

func TestNewResponse_HasMore(t *testing.T) {
	if r := NewResponse([]string{"a", "b"}, 5, 2, 0); !r.HasMore {
		t.Error("expected has_more with three doctors left")
	}
	if r := NewResponse([]string{"a"}, 5, 2, 4); r.HasMore {
		t.Error("did not expect has_more on the last page")
	}
	if r := NewResponse([]string{}, 0, 20, 0); r.HasMore || r.Links != nil {
		t.Errorf("empty listing: has_more=%v links=%v", r.HasMore, r.Links)
	}
}

func TestParams_Offsets(t *testing.T) {
	tests := []struct {
		params   Params
		total    int
		next     bool
		previous bool
		prevOff  int
	}{
		{Params{Limit: 10, Offset: 0}, 25, true, false, 0},
		{Params{Limit: 10, Offset: 10}, 25, true, true, 0},
		{Params{Limit: 10, Offset: 15}, 25, false, true, 5},
		{Params{Limit: 10, Offset: 20}, 25, false, true, 10},
		{Params{Limit: 10, Offset: 5}, 0, false, true, 0},
	}
	for _, tt := range tests {
		if got := tt.params.HasNext(tt.total); got != tt.next {
			t.Errorf("%+v HasNext(%d) = %v, want %v", tt.params, tt.total, got, tt.next)
		}
		if got := tt.params.HasPrevious(); got != tt.previous {
			t.Errorf("%+v HasPrevious() = %v, want %v", tt.params, got, tt.previous)
		}
		if got := tt.params.PreviousOffset(); got != tt.prevOff {
			t.Errorf("%+v PreviousOffset() = %d, want %d", tt.params, got, tt.prevOff)
		}
		if got := tt.params.NextOffset(); got != tt.params.Offset+tt.params.Limit {
			t.Errorf("%+v NextOffset() = %d", tt.params, got)
		}
	}
}

func TestResponse_WithLinks(t *testing.T) {
	query := url.Values{"specialty": {"cardiology"}, "offset": {"10"}, "page": {"2"}}

	first := NewResponse(nil, 25, 10, 0).WithLinks("/api/v1/doctors", query)
	if first.Links.Self != "/api/v1/doctors?limit=10&offset=0&specialty=cardiology" {
		t.Errorf("unexpected self link %q", first.Links.Self)
	}
	if first.Links.Next != "/api/v1/doctors?limit=10&offset=10&specialty=cardiology" {
		t.Errorf("unexpected next link %q", first.Links.Next)
	}
	if first.Links.Previous != "" {
		t.Errorf("did not expect a previous link on the first page, got %q", first.Links.Previous)
	}

	last := NewResponse(nil, 25, 10, 20).WithLinks("/api/v1/doctors", nil)
	if last.Links.Next != "" {
		t.Errorf("did not expect a next link on the last page, got %q", last.Links.Next)
	}
	if last.Links.Previous != "/api/v1/doctors?limit=10&offset=10" {
		t.Errorf("unexpected previous link %q", last.Links.Previous)
	}
}

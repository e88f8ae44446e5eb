package sqlite

import (
	"strings"
	"testing"

	"github.com/sekolahku/merit/internal/repository"
)

func TestBuildUserWhere_SearchEscapesPatternChars(t *testing.T) {
	tests := []struct {
		search string
		want   string
	}{
		{"Budi", "%budi%"},
		{"100%", `%100\%%`},
		{"class_7a", `%class\_7a%`},
		{`back\slash`, `%back\\slash%`},
	}

	for _, tt := range tests {
		t.Run(tt.search, func(t *testing.T) {
			where, args := buildUserWhere(repository.UserFilter{Search: tt.search})
			if !strings.Contains(where, `ESCAPE '\'`) {
				t.Fatalf("expected ESCAPE clause, got %q", where)
			}
			if len(args) != 4 {
				t.Fatalf("expected 4 args, got %d: %v", len(args), args)
			}
			for i, got := range args {
				if got != tt.want {
					t.Errorf("arg %d = %q, want %q", i, got, tt.want)
				}
			}
		})
	}
}

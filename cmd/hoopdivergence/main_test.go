package main

import (
	"fmt"
	"testing"

	"github.com/sawpanic/hoopdivergence/internal/apperrors"
	"github.com/sawpanic/hoopdivergence/internal/gridsearch"
	"github.com/sawpanic/hoopdivergence/internal/model"
)

func TestExitCodeForMapsKnownErrorTypes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, 0},
		{"invalid arguments", &apperrors.InvalidArguments{Reason: "bad"}, 2},
		{"grid invalid arguments", &gridsearch.InvalidArgumentsError{Reason: "bad"}, 2},
		{"artifact load failure", &model.ErrArtifactLoad{Field: "version"}, 3},
		{"no usable games", &gridsearch.NoUsableGamesError{}, 4},
		{"unexpected error", fmt.Errorf("boom"), 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := exitCodeFor(tc.err); got != tc.want {
				t.Errorf("exitCodeFor(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

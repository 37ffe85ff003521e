package landmark

import (
	"testing"
)

func TestDecodePoints(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    PointSet
		wantErr bool
	}{
		{
			name:    "object form",
			payload: `[{"x":1,"y":2,"z":3},{"x":4,"y":5,"z":6}]`,
			want:    PointSet{{X: 1, Y: 2, Z: 3}, {X: 4, Y: 5, Z: 6}},
		},
		{
			name:    "triple form",
			payload: `[[1,2,3],[4,5,6]]`,
			want:    PointSet{{X: 1, Y: 2, Z: 3}, {X: 4, Y: 5, Z: 6}},
		},
		{
			name:    "empty array",
			payload: `[]`,
			want:    PointSet{},
		},
		{
			name:    "empty payload",
			payload: ``,
			wantErr: true,
		},
		{
			name:    "wrong arity triple",
			payload: `[[1,2]]`,
			wantErr: true,
		},
		{
			name:    "not json",
			payload: `points ahoy`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodePoints([]byte(tt.payload))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodePoints: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("point %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestDecodePose(t *testing.T) {
	want := Matrix4{
		{1, 0, 0, 10},
		{0, 1, 0, 20},
		{0, 0, 1, 30},
		{0, 0, 0, 1},
	}

	flat := `[1,0,0,10, 0,1,0,20, 0,0,1,30, 0,0,0,1]`
	got, err := DecodePose([]byte(flat))
	if err != nil {
		t.Fatalf("DecodePose(flat): %v", err)
	}
	if got != want {
		t.Errorf("flat form = %v, want %v", got, want)
	}

	nested := `[[1,0,0,10],[0,1,0,20],[0,0,1,30],[0,0,0,1]]`
	got, err = DecodePose([]byte(nested))
	if err != nil {
		t.Fatalf("DecodePose(nested): %v", err)
	}
	if got != want {
		t.Errorf("nested form = %v, want %v", got, want)
	}
}

func TestDecodePoseErrors(t *testing.T) {
	cases := map[string]string{
		"short flat":  `[1,2,3]`,
		"three rows":  `[[1,0,0,0],[0,1,0,0],[0,0,1,0]]`,
		"ragged rows": `[[1,0,0,0],[0,1,0,0],[0,0,1,0],[0,0,0]]`,
		"not json":    `pose`,
	}

	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodePose([]byte(payload)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

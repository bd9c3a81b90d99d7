package recorder

import (
	"reflect"
	"testing"
)

func TestParseLaunch(t *testing.T) {
	tests := []struct {
		name      string
		spec      LaunchSpec
		expected  []string
		expectErr bool
	}{
		{
			name: "Endpoint substituted",
			spec: LaunchSpec{
				Command:  "ffmpeg",
				Args:     []string{"-f", "flv", "{{.Endpoint}}"},
				Endpoint: "rtmp://live.example.net/app/key",
			},
			expected: []string{"ffmpeg", "-f", "flv", "rtmp://live.example.net/app/key"},
		},
		{
			name: "Shell metacharacters stay one argument",
			spec: LaunchSpec{
				Command:  "ffmpeg",
				Args:     []string{"{{.Endpoint}}"},
				Endpoint: "rtmp://host/app; rm -rf /",
			},
			expected: []string{"ffmpeg", "rtmp://host/app; rm -rf /"},
		},
		{
			name:      "Missing command",
			spec:      LaunchSpec{Args: []string{"-i", "x"}},
			expectErr: true,
		},
		{
			name:      "Malformed template",
			spec:      LaunchSpec{Command: "ffmpeg", Args: []string{"{{.Endpoint"}},
			expectErr: true,
		},
		{
			name:      "Unknown field",
			spec:      LaunchSpec{Command: "ffmpeg", Args: []string{"{{.Bitrate}}"}},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			launch, err := ParseLaunch(tt.spec)
			if (err != nil) != tt.expectErr {
				t.Fatalf("ParseLaunch() error = %v, expectErr %v", err, tt.expectErr)
			}
			if tt.expectErr {
				return
			}
			argv, err := launch.Argv()
			if err != nil {
				t.Fatalf("Argv() error: %v", err)
			}
			if !reflect.DeepEqual(argv, tt.expected) {
				t.Errorf("Argv() = %q, want %q", argv, tt.expected)
			}
		})
	}
}

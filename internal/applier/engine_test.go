package applier

import (
	"context"
	"testing"

	"opentune/internal/config"
	"opentune/internal/runner/runnertest"
	"opentune/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCompliance(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    Compliance
		wantErr bool
	}{
		{
			name:   "json object compliant",
			output: `{"InDesiredState": true, "ResourcesNotInDesiredState": null}`,
			want:   Compliance{InDesiredState: true},
		},
		{
			name: "json object drifted",
			output: `{
				"InDesiredState": false,
				"ResourcesNotInDesiredState": [{"ResourceId": "[File]Motd"}, {"ResourceId": "[Service]W3SVC"}]
			}`,
			want: Compliance{InDesiredState: false, Detail: "not in desired state: [File]Motd, [Service]W3SVC"},
		},
		{
			name:   "json array, one target drifted",
			output: `[{"InDesiredState": true}, {"InDesiredState": false}]`,
			want:   Compliance{InDesiredState: false},
		},
		{
			name:   "plain boolean after noise",
			output: "VERBOSE: Perform operation\r\nTrue\r\n",
			want:   Compliance{InDesiredState: true},
		},
		{
			name:   "plain false",
			output: "False",
			want:   Compliance{InDesiredState: false},
		},
		{
			name:    "empty",
			output:  "  \n",
			wantErr: true,
		},
		{
			name:    "json without field",
			output:  `{"Status": "ok"}`,
			wantErr: true,
		},
		{
			name:    "unreadable",
			output:  "maybe",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCompliance(tt.output)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCommandEngine_DefaultTemplates(t *testing.T) {
	fake := runnertest.New().
		On(runnertest.Stdout(`{"InDesiredState": true}`), "Test-DscConfiguration")
	engine, err := NewCommandEngine(config.DefaultEngineConfig(), fake, logging.Nop())
	require.NoError(t, err)

	require.NoError(t, engine.Compile(context.Background(), "/src/nodes/web.ps1", "/work/compiled/web"))
	c, err := engine.Test(context.Background(), "/work/compiled/web")
	require.NoError(t, err)
	assert.True(t, c.InDesiredState)
	require.NoError(t, engine.Apply(context.Background(), "/work/it's here"))

	calls := fake.Calls()
	require.Len(t, calls, 3)

	assert.Equal(t, "pwsh", calls[0].Name)
	assert.Equal(t, []string{"-NoProfile", "-NonInteractive", "-File", "/src/nodes/web.ps1", "-OutputPath", "/work/compiled/web"}, calls[0].Args)
	assert.Equal(t, "/src/nodes", calls[0].Dir)

	assert.Equal(t, "Test-DscConfiguration -Path '/work/compiled/web' -Detailed | ConvertTo-Json -Depth 3", calls[1].Args[3])
	assert.Contains(t, calls[2].Args[3], "Start-DscConfiguration -Path '/work/it's here'")
}

func TestCommandEngine_NonZeroExit(t *testing.T) {
	fake := runnertest.New().On(runnertest.Exit(1, "line1\nline2\nStart-DscConfiguration : access denied"), "Start-DscConfiguration")
	engine, err := NewCommandEngine(config.DefaultEngineConfig(), fake, logging.Nop())
	require.NoError(t, err)

	err = engine.Apply(context.Background(), "/work/compiled/web")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine apply exited with code 1")
	assert.Contains(t, err.Error(), "access denied")
}

func TestCommandEngine_CustomTemplates(t *testing.T) {
	cfg := config.EngineConfig{
		Compile: []string{"compile-tool", "{{ .ScriptName | upper }}", "{{ .OutputDir }}"},
		Test:    []string{"check", "{{ .ArtifactDir }}"},
		Apply:   []string{"enforce", "{{ .ArtifactDir }}"},
	}
	fake := runnertest.New().On(runnertest.Stdout("true\n"), "check")
	engine, err := NewCommandEngine(cfg, fake, logging.Nop())
	require.NoError(t, err)

	require.NoError(t, engine.Compile(context.Background(), "/src/web.sh", "/out"))
	assert.Equal(t, "compile-tool WEB /out", fake.Lines()[0])
}

func TestNewCommandEngine_InvalidTemplate(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	cfg.Apply = []string{"enforce", "{{ .ArtifactDir"}

	_, err := NewCommandEngine(cfg, runnertest.New(), logging.Nop())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid engine apply template")
}

func TestCommandEngine_UnknownField(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	cfg.Apply = []string{"enforce", "{{ .Nope }}"}
	engine, err := NewCommandEngine(cfg, runnertest.New(), logging.Nop())
	require.NoError(t, err)

	assert.Error(t, engine.Apply(context.Background(), "/x"))
}

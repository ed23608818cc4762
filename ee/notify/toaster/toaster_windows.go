//go:build windows
// +build windows

package toaster

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"text/template"
	"unicode/utf16"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"gopkg.in/toast.v1"
)

// The WinRT toast API is reached through PowerShell's WinRT projection. Input
// travels as base64 JSON so markup never needs escaping inside the script.
const scriptPreamble = `$ErrorActionPreference = 'Stop'
[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] | Out-Null
[Windows.UI.Notifications.ToastNotification, Windows.UI.Notifications, ContentType = WindowsRuntime] | Out-Null
[Windows.UI.Notifications.NotificationData, Windows.UI.Notifications, ContentType = WindowsRuntime] | Out-Null
[Windows.Data.Xml.Dom.XmlDocument, Windows.Data.Xml.Dom.XmlDocument, ContentType = WindowsRuntime] | Out-Null
$in = [System.Text.Encoding]::UTF8.GetString([System.Convert]::FromBase64String('{{.Input}}')) | ConvertFrom-Json
$data = New-Object Windows.UI.Notifications.NotificationData
if ($in.data) { foreach ($p in $in.data.PSObject.Properties) { $data.Values[$p.Name] = [string]$p.Value } }
$manager = [Windows.UI.Notifications.ToastNotificationManager]
function Get-Notifier { if ($in.appId) { $manager::CreateToastNotifier($in.appId) } else { $manager::CreateToastNotifier() } }
`

var scripts = map[string]*template.Template{
	"show": template.Must(template.New("show").Parse(scriptPreamble + `
$xml = New-Object Windows.Data.Xml.Dom.XmlDocument
$xml.LoadXml($in.markup)
$toast = New-Object Windows.UI.Notifications.ToastNotification $xml
$toast.Tag = $in.tag
$toast.Group = $in.group
$toast.Data = $data
(Get-Notifier).Show($toast)
`)),
	"update": template.Must(template.New("update").Parse(scriptPreamble + `
$result = (Get-Notifier).Update($data, $in.tag, $in.group)
Write-Output ([int]$result)
`)),
	"remove": template.Must(template.New("remove").Parse(scriptPreamble + `
if ($in.appId) { $manager::History.Remove($in.tag, $in.group, $in.appId) } else { $manager::History.Remove($in.tag, $in.group) }
`)),
	"clear": template.Must(template.New("clear").Parse(scriptPreamble + `
if ($in.appId) { $manager::History.Clear($in.appId) } else { $manager::History.Clear() }
`)),
	"history": template.Must(template.New("history").Parse(scriptPreamble + `
$toasts = if ($in.appId) { $manager::History.GetHistory($in.appId) } else { $manager::History.GetHistory() }
$entries = @($toasts | ForEach-Object { [pscustomobject]@{ tag = $_.Tag; group = $_.Group } })
ConvertTo-Json -Compress -InputObject $entries
`)),
}

// scriptInput is decoded by the scripts. An empty AppID selects the
// parameterless WinRT overloads, which address the packaged app.
type scriptInput struct {
	AppID  string            `json:"appId"`
	Tag    string            `json:"tag,omitempty"`
	Group  string            `json:"group,omitempty"`
	Markup string            `json:"markup,omitempty"`
	Data   map[string]string `json:"data,omitempty"`
}

type winrtToaster struct {
	cfg    *config
	logger log.Logger
}

// New returns a toaster for the WinRT toast API. Activations arrive through the
// COM activator, not through this toaster.
func New(opts ...Option) (*winrtToaster, error) {
	cfg := newConfig(opts)
	if cfg.aumid == "" {
		return nil, fmt.Errorf("an aumid is required on windows")
	}
	return &winrtToaster{cfg: cfg, logger: cfg.logger}, nil
}

func renderScript(name string, in scriptInput) (string, error) {
	raw, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("marshalling script input: %w", err)
	}

	var script bytes.Buffer
	if err := scripts[name].Execute(&script, struct{ Input string }{base64.StdEncoding.EncodeToString(raw)}); err != nil {
		return "", fmt.Errorf("rendering %s script: %w", name, err)
	}
	return script.String(), nil
}

func (w *winrtToaster) run(ctx context.Context, name string, in scriptInput) ([]byte, error) {
	script, err := renderScript(name, in)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, "powershell.exe",
		"-NoProfile", "-NonInteractive", "-ExecutionPolicy", "Bypass",
		"-EncodedCommand", encodeCommand(script),
	)
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		level.Debug(w.logger).Log("msg", "toast script failed", "script", name, "stderr", stderr.String(), "err", err)
		return nil, fmt.Errorf("running %s script: %s: %w", name, strings.TrimSpace(stderr.String()), err)
	}

	return out, nil
}

// encodeCommand produces the base64 UTF-16LE form -EncodedCommand expects.
func encodeCommand(script string) string {
	units := utf16.Encode([]rune(script))
	buf := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(buf[i*2:], u)
	}
	return base64.StdEncoding.EncodeToString(buf)
}

func (w *winrtToaster) Show(ctx context.Context, t Toast) error {
	_, err := w.run(ctx, "show", scriptInput{
		AppID:  t.AppID,
		Tag:    t.Tag,
		Group:  t.Group,
		Markup: t.Markup,
		Data:   t.Data,
	})
	return err
}

func (w *winrtToaster) Update(ctx context.Context, appID, tag, group string, data map[string]string) (UpdateResult, error) {
	out, err := w.run(ctx, "update", scriptInput{AppID: appID, Tag: tag, Group: group, Data: data})
	if err != nil {
		return UpdateFailed, err
	}

	result, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return UpdateFailed, fmt.Errorf("parsing update result %q: %w", string(out), err)
	}

	return UpdateResult(result), nil
}

func (w *winrtToaster) Remove(ctx context.Context, appID, tag, group string) error {
	_, err := w.run(ctx, "remove", scriptInput{AppID: appID, Tag: tag, Group: group})
	return err
}

func (w *winrtToaster) Clear(ctx context.Context, appID string) error {
	_, err := w.run(ctx, "clear", scriptInput{AppID: appID})
	return err
}

func (w *winrtToaster) History(ctx context.Context, appID string) ([]Entry, error) {
	out, err := w.run(ctx, "history", scriptInput{AppID: appID})
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Tag   string `json:"tag"`
		Group string `json:"group"`
	}
	if trimmed := bytes.TrimSpace(out); len(trimmed) > 0 {
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, fmt.Errorf("parsing history: %w", err)
		}
	}

	entries := make([]Entry, 0, len(raw))
	for _, r := range raw {
		entries = append(entries, Entry{Tag: r.Tag, Group: r.Group})
	}
	return entries, nil
}

func (w *winrtToaster) Close() error {
	return nil
}

// Probe pushes a plain toast for aumid.
func Probe(ctx context.Context, logger log.Logger, aumid string) (string, error) {
	notification := toast.Notification{
		AppID:   aumid,
		Title:   "Notifications are working",
		Message: "This is a test notification.",
		Actions: []toast.Action{},
	}

	if err := notification.Push(); err != nil {
		return "", fmt.Errorf("pushing probe toast: %w", err)
	}

	level.Debug(logger).Log("msg", "probe toast pushed", "aumid", aumid)
	return "windows toast notification manager", nil
}

// focusctl is the control CLI for focusd.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"focusd/internal/aggregate"
	"focusd/internal/audio"
	"focusd/internal/classify"
	"focusd/internal/session"
)

var (
	addr   = flag.String("addr", "http://127.0.0.1:8750", "focusd HTTP address")
	output = flag.String("o", "text", "output format: text, json, yaml")
	limit  = flag.Int("n", 0, "max sessions to list (0 = server default)")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	var err error
	switch cmd := flag.Arg(0); cmd {
	case "status":
		err = cmdStatus()
	case "sessions":
		err = cmdSessions()
	case "start":
		err = cmdStart()
	case "stop":
		err = cmdStop()
	case "trigger":
		err = cmdTrigger()
	case "sensitivity":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "Usage: focusctl sensitivity <1-5>")
			os.Exit(1)
		}
		err = cmdSensitivity(flag.Arg(1))
	case "volume":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "Usage: focusctl volume <0.0-1.0>")
			os.Exit(1)
		}
		err = cmdVolume(flag.Arg(1))
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `focusctl - Control utility for focusd

Usage: focusctl [options] <command> [args]

Commands:
  status             Show daemon and session status
  sessions           List finished study sessions (-n caps the count)
  start              Start a study session
  stop               Stop the active session and print its summary
  trigger            Request an immediate classification
  sensitivity <1-5>  Set the distraction debounce threshold
  volume <0.0-1.0>   Set the background audio volume
  help               Show this help message

Options:
  -addr <url>  focusd HTTP address (default: http://127.0.0.1:8750)
  -o <format>  Output format: text, json, yaml (default: text)`)
}

var httpClient = &http.Client{Timeout: 10 * time.Second}

// daemonStatus mirrors the /api/status response.
type daemonStatus struct {
	SessionActive bool            `json:"session_active"`
	SessionID     string          `json:"session_id"`
	Stable        classify.Status `json:"stable_status"`
	LastRaw       classify.Result `json:"last_raw"`
	Stats         aggregate.Stats `json:"stats"`
	FocusScore    int             `json:"focus_score"`
	Sensitivity   int             `json:"sensitivity"`
	Audio         audio.State     `json:"audio"`
	Clients       int             `json:"clients"`
}

func cmdStatus() error {
	body, err := apiCall(http.MethodGet, "/api/status", nil)
	if err != nil {
		return err
	}
	if *output != "text" {
		return emit(body)
	}

	var st daemonStatus
	if err := json.Unmarshal(body, &st); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}

	fmt.Println("=== focusd Status ===")
	fmt.Println()
	if st.SessionActive {
		fmt.Printf("Session:     ACTIVE (%s)\n", st.SessionID)
	} else {
		fmt.Println("Session:     none")
	}
	fmt.Printf("Status:      %s\n", st.Stable)
	if st.LastRaw.Reason != "" {
		fmt.Printf("Last seen:   %s (%s, confidence %.2f)\n",
			st.LastRaw.Status, st.LastRaw.Reason, st.LastRaw.Confidence)
	}
	fmt.Printf("Focus score: %d%%\n", st.FocusScore)
	fmt.Printf("Counts:      studying=%d distracted=%d absent=%d idle=%d\n",
		st.Stats.Studying, st.Stats.Distracted, st.Stats.Absent, st.Stats.Idle)
	fmt.Printf("Sensitivity: %d\n", st.Sensitivity)
	fmt.Println()
	fmt.Printf("Audio:       track %q volume %.2f", st.Audio.Track.Name, st.Audio.BaseVolume)
	if st.Audio.Playing {
		fmt.Printf(" (playing at %.2f)", st.Audio.TargetVolume)
	}
	fmt.Println()
	fmt.Printf("Clients:     %d connected\n", st.Clients)
	return nil
}

func cmdSessions() error {
	path := "/api/sessions"
	if *limit > 0 {
		path += "?limit=" + strconv.Itoa(*limit)
	}
	body, err := apiCall(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if *output != "text" {
		return emit(body)
	}

	var sessions []session.StudySession
	if err := json.Unmarshal(body, &sessions); err != nil {
		return fmt.Errorf("decode sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Println("No finished sessions.")
		return nil
	}

	fmt.Printf("%-20s %-10s %-8s %s\n", "STARTED", "DURATION", "SCORE", "ID")
	for _, s := range sessions {
		fmt.Printf("%-20s %-10s %-8s %s\n",
			s.StartTime.Local().Format("2006-01-02 15:04:05"),
			formatDuration(s.DurationSec),
			fmt.Sprintf("%d%%", s.FocusScore),
			s.ID)
	}
	return nil
}

func cmdStart() error {
	body, err := apiCall(http.MethodPost, "/api/session/start", nil)
	if err != nil {
		return err
	}
	if *output != "text" {
		return emit(body)
	}

	var st daemonStatus
	if err := json.Unmarshal(body, &st); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}
	fmt.Printf("Session started: %s\n", st.SessionID)
	return nil
}

func cmdStop() error {
	body, err := apiCall(http.MethodPost, "/api/session/stop", nil)
	if err != nil {
		return err
	}
	if *output != "text" {
		return emit(body)
	}

	var done session.StudySession
	if err := json.Unmarshal(body, &done); err != nil {
		return fmt.Errorf("decode session: %w", err)
	}
	fmt.Printf("Session %s finished.\n", done.ID)
	fmt.Printf("Duration:    %s\n", formatDuration(done.DurationSec))
	fmt.Printf("Focus score: %d%%\n", done.FocusScore)
	fmt.Printf("Counts:      studying=%d distracted=%d absent=%d idle=%d\n",
		done.Stats.Studying, done.Stats.Distracted, done.Stats.Absent, done.Stats.Idle)
	return nil
}

func cmdTrigger() error {
	body, err := apiCall(http.MethodPost, "/api/trigger", nil)
	if err != nil {
		return err
	}
	if *output != "text" {
		return emit(body)
	}

	var res struct {
		Fired bool `json:"fired"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return fmt.Errorf("decode trigger response: %w", err)
	}
	if res.Fired {
		fmt.Println("Classification triggered.")
	} else {
		fmt.Println("Not triggered (no active session or capture already in flight).")
	}
	return nil
}

func cmdSensitivity(arg string) error {
	level, err := strconv.Atoi(arg)
	if err != nil {
		return fmt.Errorf("invalid sensitivity %q", arg)
	}
	payload, _ := json.Marshal(map[string]int{"level": level})
	body, err := apiCall(http.MethodPost, "/api/sensitivity", payload)
	if err != nil {
		return err
	}
	if *output != "text" {
		return emit(body)
	}

	var st daemonStatus
	if err := json.Unmarshal(body, &st); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}
	fmt.Printf("Sensitivity set to %d.\n", st.Sensitivity)
	return nil
}

func cmdVolume(arg string) error {
	vol, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return fmt.Errorf("invalid volume %q", arg)
	}
	payload, _ := json.Marshal(map[string]float64{"volume": vol})
	body, err := apiCall(http.MethodPost, "/api/volume", payload)
	if err != nil {
		return err
	}
	if *output != "text" {
		return emit(body)
	}

	var st daemonStatus
	if err := json.Unmarshal(body, &st); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}
	fmt.Printf("Volume set to %.2f.\n", st.Audio.BaseVolume)
	return nil
}

// apiCall performs one request against the daemon and returns the response
// body, turning non-2xx responses into errors.
func apiCall(method, path string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, *addr+path, reqBody)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("is focusd running at %s? %w", *addr, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("%s", apiErr.Error)
		}
		return nil, fmt.Errorf("%s %s: HTTP %d", method, path, resp.StatusCode)
	}
	return body, nil
}

// emit re-encodes a JSON response body in the requested output format.
func emit(body []byte) error {
	switch *output {
	case "json":
		var buf bytes.Buffer
		if err := json.Indent(&buf, body, "", "  "); err != nil {
			return err
		}
		buf.WriteByte('\n')
		_, err := os.Stdout.Write(buf.Bytes())
		return err
	case "yaml":
		var v any
		if err := json.Unmarshal(body, &v); err != nil {
			return err
		}
		out, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	default:
		return fmt.Errorf("unknown output format %q", *output)
	}
}

func formatDuration(sec int64) string {
	d := time.Duration(sec) * time.Second
	if d < time.Minute {
		return fmt.Sprintf("%ds", sec)
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%02ds", sec/60, sec%60)
	}
	return fmt.Sprintf("%dh%02dm", sec/3600, (sec%3600)/60)
}

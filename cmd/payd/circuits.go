package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/groblegark/payd/internal/breaker"
	"github.com/groblegark/payd/internal/ui"
)

var circuitsCmd = &cobra.Command{
	Use:   "circuits",
	Short: "Show circuit breaker states",
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, serverURL+"/v1/circuits", nil)
		if err != nil {
			return err
		}
		if authToken != "" {
			req.Header.Set("Authorization", "Bearer "+authToken)
		}

		client := &http.Client{Timeout: 10 * time.Second}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server returned %s", resp.Status)
		}

		var body struct {
			Circuits []breaker.Metrics `json:"circuits"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return err
		}

		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(body.Circuits)
		}

		if len(body.Circuits) == 0 {
			fmt.Println(ui.RenderMuted("no circuits yet"))
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CIRCUIT\tSTATE\tFAILURES\tSUCCESSES\tUPTIME")
		for _, m := range body.Circuits {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.1f%%\n",
				m.Name, renderState(m.State), m.TotalFailures, m.TotalSuccesses, m.UptimePercent)
		}
		return w.Flush()
	},
}

func renderState(s breaker.State) string {
	switch s {
	case breaker.StateClosed:
		return ui.RenderGood(string(s))
	case breaker.StateOpen:
		return ui.RenderBad(string(s))
	case breaker.StateHalfOpen:
		return ui.RenderWarn(string(s))
	}
	return string(s)
}

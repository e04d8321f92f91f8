package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	classifyCmd := &cobra.Command{
		Use:   "classify TEXT [TEXT...]",
		Short: "Send texts to the relay and print verdicts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClassify(apiFlag, args, os.Stdout)
		},
	}
	rootCmd.AddCommand(classifyCmd)

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check relay health",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := http.Get(apiFlag + "/health")
			if err != nil {
				return err
			}
			defer func() { _ = resp.Body.Close() }()
			data, _ := io.ReadAll(resp.Body)
			fmt.Fprintln(os.Stdout, string(data))
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("relay unhealthy: http %d", resp.StatusCode)
			}
			return nil
		},
	}
	rootCmd.AddCommand(healthCmd)
}

func runClassify(apiURL string, texts []string, out io.Writer) error {
	items := make([]map[string]string, 0, len(texts))
	for i, t := range texts {
		items = append(items, map[string]string{"id": fmt.Sprintf("p%d", i), "text": t})
	}
	body, _ := json.Marshal(items)
	resp, err := http.Post(apiURL+"/classify", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(data))
	}
	_, err = io.Copy(out, resp.Body)
	return err
}

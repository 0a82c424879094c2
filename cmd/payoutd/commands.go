package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
)

// flags
var (
	storeFlag = &cli.StringFlag{
		Name:     "store",
		Usage:    "the id of the store",
		Required: true,
	}
	methodFlag = &cli.StringFlag{
		Name:  "method",
		Usage: "the payout method id",
		Value: "BTC-CHAIN",
	}
	processorFlag = &cli.StringFlag{
		Name:  "processor",
		Usage: "the payout processor type",
		Value: "OnChainAutomatedPayoutSenderFactory",
	}
	intervalFlag = &cli.DurationFlag{
		Name:  "interval",
		Usage: "how often the processor runs",
		Value: time.Hour,
	}
	instantFlag = &cli.BoolFlag{
		Name:  "instant",
		Usage: "process newly approved payouts right away",
	}
	thresholdFlag = &cli.StringFlag{
		Name:  "threshold",
		Usage: "minimum total amount of a batch",
		Value: "0",
	}
	feeTargetFlag = &cli.UintFlag{
		Name:  "fee-target",
		Usage: "confirmation target in blocks used for fee estimation",
		Value: 1,
	}
	stateFlag = &cli.StringSliceFlag{
		Name:  "state",
		Usage: "filter payouts by state",
	}
)

// commands
var (
	processorsCmd = &cli.Command{
		Name:  "processors",
		Usage: "Manage the payout processors of a store",
		Subcommands: append(
			cli.Commands{},
			processorsListCmd,
			processorsSetCmd,
			processorsRemoveCmd,
		),
	}
	processorsListCmd = &cli.Command{
		Name:   "list",
		Usage:  "List the payout processors of a store",
		Action: processorsListAction,
		Flags:  []cli.Flag{storeFlag},
	}
	processorsSetCmd = &cli.Command{
		Name:   "set",
		Usage:  "Create or update a payout processor",
		Action: processorsSetAction,
		Flags: []cli.Flag{
			storeFlag, methodFlag, processorFlag, intervalFlag, instantFlag,
			thresholdFlag, feeTargetFlag,
		},
	}
	processorsRemoveCmd = &cli.Command{
		Name:   "remove",
		Usage:  "Remove a payout processor",
		Action: processorsRemoveAction,
		Flags:  []cli.Flag{storeFlag, methodFlag, processorFlag},
	}
	payoutsCmd = &cli.Command{
		Name:  "payouts",
		Usage: "Inspect the payouts of a store",
		Subcommands: append(
			cli.Commands{},
			payoutsListCmd,
		),
	}
	payoutsListCmd = &cli.Command{
		Name:   "list",
		Usage:  "List the payouts of a store",
		Action: payoutsListAction,
		Flags:  []cli.Flag{storeFlag, stateFlag},
	}
)

func processorsListAction(ctx *cli.Context) error {
	url := fmt.Sprintf(
		"%s/v1/stores/%s/payout-processors",
		ctx.String("url"), url.PathEscape(ctx.String("store")),
	)
	processors, err := get[json.RawMessage](url, "processors")
	if err != nil {
		return err
	}
	return printJSON(processors)
}

func processorsSetAction(ctx *cli.Context) error {
	url := processorURL(ctx)
	body, err := json.Marshal(map[string]interface{}{
		"intervalSeconds":            int64(ctx.Duration("interval") / time.Second),
		"processNewPayoutsInstantly": ctx.Bool("instant"),
		"threshold":                  ctx.String("threshold"),
		"feeTargetBlock":             ctx.Uint("fee-target"),
	})
	if err != nil {
		return err
	}

	processor, err := send[json.RawMessage](http.MethodPut, url, string(body), "processor")
	if err != nil {
		return err
	}
	return printJSON(processor)
}

func processorsRemoveAction(ctx *cli.Context) error {
	if _, err := send[struct{}](http.MethodDelete, processorURL(ctx), "", ""); err != nil {
		return err
	}

	fmt.Println("payout processor removed")
	return nil
}

func payoutsListAction(ctx *cli.Context) error {
	endpoint := fmt.Sprintf(
		"%s/v1/stores/%s/payouts", ctx.String("url"), url.PathEscape(ctx.String("store")),
	)
	if states := ctx.StringSlice("state"); len(states) > 0 {
		endpoint = fmt.Sprintf("%s?state=%s", endpoint, strings.Join(states, ","))
	}

	payouts, err := get[json.RawMessage](endpoint, "payouts")
	if err != nil {
		return err
	}
	return printJSON(payouts)
}

func processorURL(ctx *cli.Context) string {
	return fmt.Sprintf(
		"%s/v1/stores/%s/payout-processors/%s/%s",
		ctx.String("url"), url.PathEscape(ctx.String("store")),
		url.PathEscape(ctx.String("method")), url.PathEscape(ctx.String("processor")),
	)
}

func get[T any](url, key string) (result T, err error) {
	return send[T](http.MethodGet, url, "", key)
}

func send[T any](method, url, body, key string) (result T, err error) {
	var reqBody io.Reader
	if len(body) > 0 {
		reqBody = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return
	}
	req.Header.Add("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return
	}
	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(buf))
		return
	}
	if key == "" {
		return
	}

	res := make(map[string]T)
	if err = json.Unmarshal(buf, &res); err != nil {
		return
	}

	result = res[key]
	return
}

func printJSON(v json.RawMessage) error {
	var buf interface{}
	if err := json.Unmarshal(v, &buf); err != nil {
		return err
	}
	out, err := json.MarshalIndent(buf, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

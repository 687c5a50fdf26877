// Command chat streams a chat or completion from a provider to stdout,
// without going through the gateway.
//
//	chat chat --provider nemo "What is a tokenizer?"
//	chat chat --provider aifm --model llama2-70b --image cat.png "Describe this"
//	echo "def fib(n):" | chat complete --provider aifm
//
// The API key is taken from --api-key or CHATWIRE_<PROVIDER>_API_KEY.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:           "chat",
		Short:         "Stream chats and completions from AI Foundation Models and NeMo LLM",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&f.provider, "provider", "p", "nemo", "provider type: aifm or nemo")
	pf.StringVar(&f.baseURL, "base-url", "", "override the provider endpoint")
	pf.StringVar(&f.apiKey, "api-key", "", "API key (default from CHATWIRE_<PROVIDER>_API_KEY)")
	pf.StringVarP(&f.model, "model", "m", "", "model name (default: the provider's default)")
	pf.Float64Var(&f.temperature, "temperature", 0, "sampling temperature")
	pf.Float64Var(&f.topP, "top-p", 0, "nucleus sampling threshold")
	pf.IntVar(&f.topK, "top-k", 0, "top-k sampling")
	pf.IntVar(&f.maxTokens, "max-tokens", 0, "maximum tokens to generate")
	pf.StringSliceVar(&f.stop, "stop", nil, "stop sequence, repeatable")
	pf.BoolVar(&f.strict, "strict", false, "fail on an unterminated final line")
	pf.StringVar(&f.debug, "debug", "", "comma separated debug categories, e.g. stream,provider")

	root.AddCommand(newChatCmd(f), newCompleteCmd(f), newModelsCmd(f))
	return root
}

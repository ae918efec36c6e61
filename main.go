package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hanbit-dev/kiosk-agent/agent/dialogue"
	"github.com/hanbit-dev/kiosk-agent/agent/llm"
	memoryx "github.com/hanbit-dev/kiosk-agent/agent/memory"
	menux "github.com/hanbit-dev/kiosk-agent/agent/menu"
	"github.com/hanbit-dev/kiosk-agent/agent/prompt"
	"github.com/hanbit-dev/kiosk-agent/agent/recovery"
	toolx "github.com/hanbit-dev/kiosk-agent/agent/tool"
	configx "github.com/hanbit-dev/kiosk-agent/pkg/config"
	logx "github.com/hanbit-dev/kiosk-agent/pkg/logger"
	openrouterx "github.com/hanbit-dev/kiosk-agent/pkg/openrouter"
)

var (
	exitKeywords   = []string{"종료", "exit", "quit", "bye"}
	cancelKeywords = []string{"취소", "초기화", "cancel", "reset"}
)

func main() {
	logCfg := configx.MustNew[logx.Config]("LOG")
	logx.Init(*logCfg)

	openRouterCfg := configx.MustNew[openrouterx.Config]("OPENROUTER")
	retryCfg := configx.MustNew[recovery.Config]("RETRY")
	memoryCfg := configx.MustNew[memoryx.Config]("MEMORY")

	model, err := llm.FromOpenRouter(*openRouterCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build chat model")
	}

	store, err := memoryx.New(*memoryCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build memory store")
	}
	if pg, ok := store.(*memoryx.PostgresStore); ok {
		if err := pg.Init(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("failed to initialize memory schema")
		}
		defer pg.Close()
	}

	catalog := menux.NewCatalog()
	session, err := dialogue.NewSession(catalog, time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start session")
	}

	registry := toolx.NewRegistry(catalog, session.Order)
	policy := recovery.NewPolicy(*retryCfg)
	prompts := prompt.LoadPromptSet()

	agent, err := dialogue.NewAgent(model, registry, store, policy, prompts.Kiosk)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build agent")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	run(ctx, agent, session, registry, catalog)

	drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := agent.Drain(drainCtx); err != nil {
		log.Warn().Err(err).Msg("memory writes not drained before exit")
	}
}

func run(ctx context.Context, agent *dialogue.Agent, session *dialogue.Session, registry *toolx.Registry, catalog *menux.Catalog) {
	fmt.Println("=====================================")
	fmt.Println(" 어서 오세요! 주문을 도와드릴게요.")
	fmt.Println(" 종료하시려면 '종료', 주문을 처음부터 다시 하시려면 '취소'라고 입력해 주세요.")
	fmt.Println("=====================================")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		if session.Ended() {
			fmt.Println("이용해 주셔서 감사합니다. 안녕히 가세요!")
			return
		}
		if ctx.Err() != nil {
			fmt.Println()
			fmt.Println("이용해 주셔서 감사합니다. 안녕히 가세요!")
			return
		}

		fmt.Print("\n고객님> ")
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if matchesKeyword(input, exitKeywords) {
			if confirmExit(scanner) {
				fmt.Println("이용해 주셔서 감사합니다. 안녕히 가세요!")
				return
			}
			continue
		}

		if matchesKeyword(input, cancelKeywords) {
			if err := session.ResetOrder(catalog, time.Now()); err != nil {
				fmt.Println("키오스크> 주문을 초기화할 수 없습니다.")
				continue
			}
			registry.Bind(session.Order)
			fmt.Println("키오스크> 주문을 처음부터 다시 시작합니다. 무엇을 드릴까요?")
			continue
		}

		reply := agent.HandleTurn(ctx, session, input)
		if reply.Err != nil {
			log.Debug().Err(reply.Err).Msg("turn resolved with error")
		}

		fmt.Printf("키오스크> %s\n", reply.Message)
		if reply.OrderSummary != "" {
			fmt.Println()
			fmt.Println(reply.OrderSummary)
		}
	}
}

func matchesKeyword(input string, keywords []string) bool {
	lowered := strings.ToLower(input)
	for _, kw := range keywords {
		if lowered == kw {
			return true
		}
	}
	return false
}

func confirmExit(scanner *bufio.Scanner) bool {
	fmt.Print("키오스크> 정말 종료하시겠어요? (y/예 입력 시 종료) ")
	if !scanner.Scan() {
		return true
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes" || answer == "예" || answer == "네"
}

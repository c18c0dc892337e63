// lquic是围绕internal/client和server的命令行外壳：连接到一个
// 对端，发出Initial数据报，并打印此时拥塞控制器的cwnd/ssthresh/在途字节，
// 用来手动练习整条链路。连接内部的拥塞控制器用的是空日志实现，窗口的
// 后续变化不会打到日志里。核心语义全部在internal/packet与
// internal/congestion里，这里只是组装配置和啟动循环。
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"quictransport/internal/client"
	"quictransport/internal/logging"
	"quictransport/server"
)

var rootCmd = &cobra.Command{
	Use:   "lquic",
	Short: "基于长包头编解码核心和NewReno拥塞控制器的QUIC传输层练习工具",
}

func main() {
	rootCmd.AddCommand(connectCmd, serveCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() logging.Logger {
	base := logrus.New()
	if viper.GetBool("verbose") {
		base.SetLevel(logrus.DebugLevel)
	}
	return logging.New(base)
}

var connectAddr string

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "连接到一个QUIC服务端并发出Initial数据报",
	RunE:  runConnect,
}

func init() {
	connectCmd.Flags().StringVarP(&connectAddr, "addr", "a", "127.0.0.1:4433", "服务端地址")
	connectCmd.Flags().Bool("verbose", false, "打印debug级别的日志")
	_ = viper.BindPFlag("verbose", connectCmd.Flags().Lookup("verbose"))
}

func runConnect(cmd *cobra.Command, args []string) error {
	log := newLogger()

	c, err := client.New(client.Config{RemoteAddr: connectAddr, Logger: log})
	if err != nil {
		return fmt.Errorf("创建客户端失败: %w", err)
	}
	defer c.Close()

	if err := c.Connect(); err != nil {
		return fmt.Errorf("连接失败: %w", err)
	}

	conn := c.Connection()
	fmt.Printf("已向%s发出Initial数据报，目标连接ID=%x\n", connectAddr, conn.GetDestConnID())

	state := conn.Controller().State()
	fmt.Printf("初始拥塞窗口: cwnd=%d ssthresh=%d bytes_in_flight=%d\n", state.Cwnd, state.Ssthresh, state.BytesInFlight)

	time.Sleep(200 * time.Millisecond)
	return nil
}

var serveAddr string
var serveMaxConns int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动一个QUIC服务端，接受Initial数据报并建立连接",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", ":4433", "监听地址")
	serveCmd.Flags().IntVar(&serveMaxConns, "max-connections", 1000, "最大并发连接数")
	serveCmd.Flags().Bool("verbose", false, "打印debug级别的日志")
	_ = viper.BindPFlag("verbose", serveCmd.Flags().Lookup("verbose"))
}

func runServe(cmd *cobra.Command, args []string) error {
	log := newLogger()

	s, err := server.New(server.Config{
		Addr:           serveAddr,
		MaxConnections: serveMaxConns,
		Logger:         log,
	})
	if err != nil {
		return fmt.Errorf("创建服务端失败: %w", err)
	}

	if err := s.Start(); err != nil {
		return fmt.Errorf("启动服务端失败: %w", err)
	}
	defer s.Close()

	fmt.Printf("正在%s上监听\n", serveAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	fmt.Println("收到退出信号，正在关闭")
	return nil
}

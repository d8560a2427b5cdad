package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/PierreCStars/stars-vacation-management-sub001/internal/model"
	"github.com/PierreCStars/stars-vacation-management-sub001/internal/service"
)

// errHasFailures 存在失败条目，统计已打印
var errHasFailures = errors.New("存在失败条目")

// services 命令使用的业务服务
type services struct {
	Maintenance service.MaintenanceService
	Report      service.ReportService
	Reminder    service.ReminderService
}

// appFactory 按配置路径构造服务；返回的 cleanup 在命令结束时调用
type appFactory func(ctx context.Context, configPath string) (*services, func(), error)

// newRootCmd 构造命令树；返回的 closeFn 释放命令执行期间初始化的依赖
func newRootCmd(factory appFactory) (*cobra.Command, func()) {
	var (
		configPath string
		svc        *services
		cleanup    func()
	)

	root := &cobra.Command{
		Use:           "vacationctl",
		Short:         "假期管理系统运维工具",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			var err error
			svc, cleanup, err = factory(cmd.Context(), configPath)
			return err
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "配置文件路径")

	get := func() *services { return svc }
	root.AddCommand(
		newBackfillCmd(get),
		newMigrateLinkageCmd(get),
		newReconcileCmd(get),
		newCleanupCmd(get),
		newSendReportCmd(get),
		newRemindCmd(get),
	)

	closeFn := func() {
		if cleanup != nil {
			cleanup()
			cleanup = nil
		}
	}
	return root, closeFn
}

func newBackfillCmd(svc func() *services) *cobra.Command {
	return &cobra.Command{
		Use:   "backfill",
		Short: "归一化历史状态/类型写法并补齐天数",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := svc().Maintenance.Backfill(cmd.Context())
			if err != nil {
				return err
			}
			return printMaintenance(cmd.OutOrStdout(), "backfill", res)
		},
	}
}

func newMigrateLinkageCmd(svc func() *services) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate-linkage",
		Short: "将历史日历事件字段并入 calendar_event_id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := svc().Maintenance.MigrateLinkage(cmd.Context())
			if err != nil {
				return err
			}
			return printMaintenance(cmd.OutOrStdout(), "migrate-linkage", res)
		},
	}
}

func newReconcileCmd(svc func() *services) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "与共享日历对账（单条或全部）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := svc().Maintenance.Reconcile(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printSync(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "申请 ID，为空时对账全部申请")
	return cmd
}

func newCleanupCmd(svc func() *services) *cobra.Command {
	var before, status string
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "删除指定日期之前结束的申请（先删除关联日历事件）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := time.Parse("2006-01-02", before); err != nil {
				return fmt.Errorf("--before 需为 YYYY-MM-DD: %q", before)
			}
			st, err := parseStatus(status)
			if err != nil {
				return err
			}
			res, err := svc().Maintenance.Cleanup(cmd.Context(), before, st)
			if err != nil {
				return err
			}
			return printMaintenance(cmd.OutOrStdout(), "cleanup", res)
		},
	}
	cmd.Flags().StringVar(&before, "before", "", "结束日期早于该日期（YYYY-MM-DD）")
	cmd.Flags().StringVar(&status, "status", "denied", "申请状态：pending / approved / denied")
	_ = cmd.MarkFlagRequired("before")
	return cmd
}

func newSendReportCmd(svc func() *services) *cobra.Command {
	var (
		year, month int
		force       bool
	)
	cmd := &cobra.Command{
		Use:   "send-report",
		Short: "发送月度汇总邮件",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := svc().Report.SendMonthly(cmd.Context(), year, month, force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "send-report %04d-%02d: rows=%d recipients=%s\n",
				res.Year, res.Month, res.Rows, strings.Join(res.Recipients, ","))
			return nil
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "年份")
	cmd.Flags().IntVar(&month, "month", 0, "月份（1-12）")
	cmd.Flags().BoolVar(&force, "force", false, "忽略已发送标记")
	_ = cmd.MarkFlagRequired("year")
	_ = cmd.MarkFlagRequired("month")
	return cmd
}

func newRemindCmd(svc func() *services) *cobra.Command {
	return &cobra.Command{
		Use:   "remind",
		Short: "发送待审批提醒",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := svc().Reminder.SendPendingReminders(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "remind: pending=%d reminded=%d sent=%v\n", res.Pending, res.Reminded, res.Sent)
			if res.Error != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "  error: %s\n", res.Error)
				return errHasFailures
			}
			return nil
		},
	}
}

// ── 输出 ──

func printMaintenance(w io.Writer, name string, res *service.MaintenanceResult) error {
	fmt.Fprintf(w, "%s: scanned=%d updated=%d failed=%d\n", name, res.Scanned, res.Updated, res.Failed)
	for _, e := range res.Errors {
		fmt.Fprintf(w, "  error: %s\n", e)
	}
	if !res.OK() {
		return errHasFailures
	}
	return nil
}

func printSync(w io.Writer, res *service.BulkSyncResult) error {
	for _, r := range res.Results {
		line := fmt.Sprintf("  %s: %s", r.RequestID, r.Action)
		if r.EventID != "" {
			line += " event=" + r.EventID
		}
		if !r.Success {
			line += " error=" + r.Error
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "reconcile: total=%d succeeded=%d failed=%d\n", res.Total, res.Succeeded, res.Failed)
	if res.Failed > 0 {
		return errHasFailures
	}
	return nil
}

// parseStatus 只接受能归一为规范状态的写法
func parseStatus(raw string) (model.VacationStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending":
		return model.StatusPending, nil
	case "approved":
		return model.StatusApproved, nil
	case "denied":
		return model.StatusDenied, nil
	}
	return "", fmt.Errorf("--status 只能为 pending / approved / denied: %q", raw)
}

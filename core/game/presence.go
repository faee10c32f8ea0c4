package game

import (
	"context"
	"fmt"
)

// 在场状态：客户端失去前台（切后台、锁屏、断线）时打上 inactive 标记，
// 回到前台时清掉。标记只影响展示，不参与计分。

// SetPlayerPresence 更新玩家的在场标记
func (m *SessionManager) SetPlayerPresence(ctx context.Context, gameID, playerID string, present bool) error {
	fields := map[string]interface{}{"inactive": nil}
	if !present {
		now, err := m.store.Now(ctx)
		if err != nil {
			return err
		}
		fields["inactive"] = now
	}
	if err := m.store.Update(ctx, playerPath(gameID, playerID), fields); err != nil {
		return fmt.Errorf("更新玩家在场状态失败: %w", err)
	}
	return nil
}

// SetGamePresence 更新主持端的在场标记
func (m *SessionManager) SetGamePresence(ctx context.Context, gameID string, present bool) error {
	if _, err := m.GetGame(ctx, gameID); err != nil {
		return err
	}
	fields := map[string]interface{}{"inactive": nil}
	if !present {
		now, err := m.store.Now(ctx)
		if err != nil {
			return err
		}
		fields["inactive"] = now
	}
	if err := m.store.Update(ctx, gamePath(gameID), fields); err != nil {
		return fmt.Errorf("更新主持端在场状态失败: %w", err)
	}
	return nil
}

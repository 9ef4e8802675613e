// Package internal 實現 Pong 即時對戰協調服務。
//
// 服務本身不跑物理模擬：房主的瀏覽器是唯一權威，本服務只負責
// 連接管理、邀請配對、訊息轉發與對局紀錄的開始與結束。
//
// # 連接註冊表
//
// Registry 維護「用戶 → 在線連接集合」：
//   - 同一用戶可以同時開多個分頁
//   - 最後一個連接關閉才算離線
//   - 推送不阻塞，緩衝區滿就丟棄
//
// # 邀請
//
// InviteManager 管理待回覆的邀請，每筆邀請只能被解決一次：
//
//	pending → accepted | declined | expired | cancelled
//
// 邀請預設 60 秒過期，過期只通知邀請者。用戶離線時他發出與收到的邀請都會被清理。
//
// # 對局
//
// SessionRegistry 維護進行中的對局：
//   - 每位用戶同時最多一場對局
//   - 只有房主的 game_state 會被轉發給客人
//   - paddle 更新只轉發給對手
//   - 結束時寫入比分與勝者，雙方收到 game_ended
//
// 參與者斷線且在寬限期內未重連時判負（可關閉）。
//
// # 聊天通知
//
// Bridge 訂閱聊天服務發布的通知（Redis Pub/Sub 或 NATS），
// 推送給本實例上的在線接收者；離線者直接丟棄。
//
// # 協議
//
// 客戶端以 GET /ws?token=<JWT> 連線。沒帶 token 以 4001 關閉，
// token 無效以 4002 關閉。之後每則訊息都是 {"type": ..., ...} 的 JSON。
//
// 使用範例：
//
//	coord := internal.NewCoordinator(store, internal.CoordinatorOptions{InviteTTL: time.Minute}, logger)
//	hub := internal.NewHub(coord, verifier, internal.HubOptions{}, logger)
//	mux.HandleFunc("GET /ws", hub.ServeWS)
package internal

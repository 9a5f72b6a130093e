// Package source 定义要素数据源的注册表与公共下载逻辑。
// 具体数据源（kml、csv）位于子包中，并在 init() 中调用 MustRegister 完成注册。
package source

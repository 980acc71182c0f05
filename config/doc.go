// Package config 提供 Orchestra 的静态配置对象。
//
// 配置按 默认值 → YAML 文件 → 环境变量（ORCHESTRA_ 前缀）的顺序叠加，
// 在进程启动时加载一次并传给各组件构造函数；Validate 汇总所有
// 启动期配置错误。
package config

// Package views renders the HTML grid page. Components are written in
// views.templ; run templ generate after editing it.
package views

//go:generate templ generate

import (
	"net/url"
	"strconv"

	"github.com/JonMunkholm/tablesift/internal/core"
)

// GridData is everything the grid page shows.
type GridData struct {
	Page  core.Page
	Stats core.Stats
}

func pageQuery(offset, limit int) string {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	return q.Encode()
}

const styles = `body{font-family:sans-serif;margin:1rem}
table{border-collapse:collapse;font-size:13px}
td,th{border:1px solid #ddd;padding:2px 6px;white-space:pre}
td.highlighted{background:#fff59d}
td.duplicate{background:#ffcdd2}
td.both{background:#ffab91}
th.dup-col{background:#ef9a9a}
.stats dt{font-weight:bold;display:inline}
.stats dd{display:inline;margin:0 1em 0 .3em}
.alert{border:1px solid #c62828;padding:.5em;color:#c62828}
.pager a,form button,form label{margin-left:.5em}`

const script = `
const post=(u,b)=>fetch(u,{method:"POST",headers:{"Content-Type":"application/json"},body:JSON.stringify(b||{})});
const show=async r=>{if(r.ok){location.reload();return}const e=await r.json();alert(e.message+" ("+e.code+")")};
const lf=document.getElementById("load");
if(lf){lf.onsubmit=async ev=>{ev.preventDefault();
 const r=await post("/api/load",{path:lf.path.value,sheet:lf.sheet.value});
 if(!r.ok){show(r);return}
 const es=new EventSource("/api/load/events"),p=document.getElementById("progress");
 es.addEventListener("progress",e=>{p.textContent=JSON.parse(e.data).percent+"%"});
 for(const k of ["loaded","failed","cancelled"])es.addEventListener(k,e=>{es.close();
  const s=JSON.parse(e.data);if(s.error)alert(s.error);location.reload()});
};document.getElementById("cancel").onclick=()=>post("/api/load/cancel")}
const sf=document.getElementById("search");
if(sf){sf.onsubmit=async ev=>{ev.preventDefault();
 show(await post("/api/search",{term1:sf.term1.value,term2:sf.term2.value,logic:sf.logic.value,
  matchCase:sf.matchCase.checked,entireField:sf.entireField.checked}))};
 document.getElementById("reset").onclick=async()=>show(await post("/api/search/reset"))}
`

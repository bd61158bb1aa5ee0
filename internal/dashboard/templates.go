package dashboard

import "html/template"

var overviewTmpl = template.Must(template.New("overview").Parse(overviewHTML))

const overviewHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Course}} — Course Dashboard</title>
<style>
body { font-family: -apple-system, "Segoe UI", Helvetica, Arial, sans-serif; margin: 0; background: #f8fafc; color: #0f172a; }
header { background: #1e293b; color: #fff; padding: 16px 24px; }
header h1 { margin: 0; font-size: 20px; }
nav { display: flex; gap: 8px; padding: 12px 24px; background: #fff; border-bottom: 1px solid #e2e8f0; }
nav button { border: 1px solid #cbd5e1; background: #fff; border-radius: 6px; padding: 6px 14px; cursor: pointer; }
nav button.active { background: #1e293b; color: #fff; border-color: #1e293b; }
main { padding: 24px; }
table { border-collapse: collapse; background: #fff; }
th, td { border: 1px solid #e2e8f0; padding: 4px 8px; font-size: 13px; }
th { background: #f1f5f9; position: sticky; top: 0; }
.s1 { background: #fecaca; } .s2 { background: #fed7aa; } .s3 { background: #fef08a; }
.s4 { background: #bbf7d0; } .s5 { background: #6ee7b7; }
.dash { color: #94a3b8; }
.bar { display: inline-block; height: 14px; background: #1e293b; }
.card { background: #fff; border: 1px solid #e2e8f0; border-radius: 8px; padding: 16px; margin-bottom: 16px; }
.notes { color: #475569; font-size: 13px; white-space: pre-wrap; }
a.stu { cursor: pointer; color: #1d4ed8; text-decoration: underline; }
</style>
</head>
<body>
<header><h1 id="title"></h1></header>
<nav>
<button id="tab-overview" class="active">Overview</button>
<button id="tab-assignment">By Assignment</button>
<button id="tab-student">By Student</button>
</nav>
<main id="content"></main>
<script>
const STATE = {{.State}};

function h(tag, attrs, ...children) {
  const el = document.createElement(tag);
  for (const [k, v] of Object.entries(attrs || {})) {
    if (k === 'class') el.className = v;
    else if (k.startsWith('on')) el.addEventListener(k.slice(2), v);
    else el.setAttribute(k, v);
  }
  for (const c of children) {
    el.append(typeof c === 'string' ? document.createTextNode(c) : c);
  }
  return el;
}

function scoreCell(v) {
  if (v === null || v === undefined) return h('td', {class: 'dash'}, '–');
  return h('td', {class: 's' + v}, String(v));
}

function distribution(field) {
  const counts = [0, 0, 0, 0, 0];
  for (const s of STATE.students) {
    for (const row of Object.values(s.assignments)) {
      const v = row[field];
      if (v >= 1 && v <= 5) counts[v - 1]++;
    }
  }
  return counts;
}

function chart(title, counts) {
  const max = Math.max(1, ...counts);
  const card = h('div', {class: 'card'}, h('h3', {}, title));
  counts.forEach((c, i) => {
    card.append(h('div', {},
      h('span', {}, (i + 1) + ' '),
      h('span', {class: 'bar', style: 'width:' + (c / max * 240) + 'px'}),
      h('span', {}, ' ' + c)));
  });
  return card;
}

function grid() {
  const head = h('tr', {}, h('th', {}, 'Student'));
  for (const a of STATE.assignments) head.append(h('th', {title: a.title}, a.key));
  const table = h('table', {}, head);
  for (const s of STATE.students) {
    const tr = h('tr', {}, h('td', {},
      h('a', {class: 'stu', onclick: () => showStudent(s.anonId)}, s.anonId + ' ' + s.name)));
    for (const a of STATE.assignments) {
      const row = s.assignments[a.key];
      tr.append(scoreCell(row ? row.quality : null));
    }
    table.append(tr);
  }
  return table;
}

function showOverview() {
  setTab('overview');
  const main = content();
  main.append(chart('Participation distribution', distribution('participation')));
  main.append(chart('Quality distribution', distribution('quality')));
  main.append(h('div', {class: 'card'}, h('h3', {}, 'All students × all assignments'), grid()));
}

function showAssignments() {
  setTab('assignment');
  const main = content();
  for (const a of STATE.assignments) {
    const card = h('div', {class: 'card'},
      h('h3', {}, a.key + ' — ' + a.title),
      h('div', {class: 'notes'}, 'Sprint ' + a.sprint + ', week ' + a.week + ', due ' + a.due + ', ' + a.points + ' pts'));
    const table = h('table', {}, h('tr', {},
      h('th', {}, 'Student'), h('th', {}, 'Part.'), h('th', {}, 'Quality'), h('th', {}, 'Notes')));
    for (const s of STATE.students) {
      const row = s.assignments[a.key];
      if (!row) continue;
      table.append(h('tr', {},
        h('td', {}, s.anonId + ' ' + s.name),
        scoreCell(row.participation),
        scoreCell(row.quality),
        h('td', {class: 'notes'}, row.qualityNotes || '')));
    }
    card.append(table);
    main.append(card);
  }
}

function showStudent(anonId) {
  setTab('student');
  const main = content();
  const students = anonId ? STATE.students.filter(s => s.anonId === anonId) : STATE.students;
  for (const s of students) {
    const card = h('div', {class: 'card'}, h('h3', {}, s.anonId + ' — ' + s.name));
    if (s.summary) card.append(h('p', {class: 'notes'}, s.summary));
    const table = h('table', {}, h('tr', {},
      h('th', {}, 'Assignment'), h('th', {}, 'Part.'), h('th', {}, 'Quality'), h('th', {}, 'Notes')));
    for (const a of STATE.assignments) {
      const row = s.assignments[a.key];
      if (!row) continue;
      table.append(h('tr', {},
        h('td', {}, a.key),
        scoreCell(row.participation),
        scoreCell(row.quality),
        h('td', {class: 'notes'}, row.qualityNotes || '')));
    }
    card.append(table);
    main.append(card);
  }
}

function content() {
  const main = document.getElementById('content');
  main.replaceChildren();
  return main;
}

function setTab(name) {
  for (const id of ['overview', 'assignment', 'student']) {
    document.getElementById('tab-' + id).classList.toggle('active', id === name);
  }
}

document.getElementById('title').textContent =
  STATE.course + ' — ' + STATE.semester + ' (generated ' + STATE.generatedAt + ')';
document.getElementById('tab-overview').addEventListener('click', showOverview);
document.getElementById('tab-assignment').addEventListener('click', showAssignments);
document.getElementById('tab-student').addEventListener('click', () => showStudent(null));
showOverview();
</script>
</body>
</html>
`

var discussionTmpl = template.Must(template.New("discussion").Parse(discussionHTML))

const discussionHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Course}} — Discussion Review</title>
<style>
body { font-family: -apple-system, "Segoe UI", Helvetica, Arial, sans-serif; margin: 0; background: #f8fafc; color: #0f172a; }
header { background: #1e293b; color: #fff; padding: 16px 24px; display: flex; justify-content: space-between; align-items: center; }
header h1 { margin: 0; font-size: 20px; }
header button { background: #059669; color: #fff; border: 0; border-radius: 6px; padding: 8px 16px; cursor: pointer; }
nav { display: flex; gap: 8px; padding: 12px 24px; background: #fff; border-bottom: 1px solid #e2e8f0; }
nav button { border: 1px solid #cbd5e1; background: #fff; border-radius: 6px; padding: 6px 14px; cursor: pointer; }
nav button.active { background: #1e293b; color: #fff; border-color: #1e293b; }
main { padding: 24px; }
table { border-collapse: collapse; background: #fff; width: 100%; }
th, td { border: 1px solid #e2e8f0; padding: 6px 8px; font-size: 13px; vertical-align: top; }
th { background: #f1f5f9; }
.excerpt { max-width: 320px; max-height: 140px; overflow-y: auto; white-space: pre-wrap; font-size: 12px; color: #334155; }
.badge { display: inline-block; border-radius: 10px; padding: 1px 8px; font-size: 12px; background: #e0e7ff; }
.total { font-weight: bold; background: #dbeafe; }
textarea { width: 100%; min-height: 48px; font-size: 12px; }
.new { background: #dcfce7; } .changed { background: #fef9c3; } .unchanged { color: #94a3b8; }
</style>
</head>
<body>
<header>
<h1 id="title"></h1>
<button id="download">Download Grades JSON</button>
</header>
<nav>
<button id="tab-review" class="active">Review</button>
<button id="tab-changes">Grade Changes</button>
</nav>
<main id="content"></main>
<script>
const STATE = {{.State}};
const edits = {};
for (const [anonId, r] of Object.entries(STATE.results)) {
  edits[anonId] = {
    writingScore: r.writingScore,
    writingFeedback: r.writingFeedback,
    discussionScore: r.discussionScore,
    discussionFeedback: r.discussionFeedback,
    overallNote: r.overallNote
  };
}

function h(tag, attrs, ...children) {
  const el = document.createElement(tag);
  for (const [k, v] of Object.entries(attrs || {})) {
    if (k === 'class') el.className = v;
    else if (k.startsWith('on')) el.addEventListener(k.slice(2), v);
    else el.setAttribute(k, v);
  }
  for (const c of children) {
    el.append(typeof c === 'string' ? document.createTextNode(c) : c);
  }
  return el;
}

function scoreSelect(anonId, field, totalEl) {
  const sel = h('select', {onchange: e => {
    edits[anonId][field] = Number(e.target.value);
    totalEl.textContent = String(total(anonId));
  }});
  for (let i = 0; i <= 5; i++) {
    const opt = h('option', {value: String(i)}, String(i));
    if (edits[anonId][field] === i) opt.selected = true;
    sel.append(opt);
  }
  return sel;
}

function feedbackArea(anonId, field) {
  const ta = h('textarea', {oninput: e => { edits[anonId][field] = e.target.value; }});
  ta.value = edits[anonId][field] || '';
  return ta;
}

function total(anonId) {
  return Math.min(10, edits[anonId].writingScore + edits[anonId].discussionScore);
}

function showReview() {
  setTab('review');
  const main = content();
  const table = h('table', {}, h('tr', {},
    h('th', {}, 'Student'), h('th', {}, 'Partner'), h('th', {}, 'Writing excerpt'),
    h('th', {}, 'Discussion summary'), h('th', {}, 'AI probes'), h('th', {}, 'Writing'),
    h('th', {}, 'Discussion'), h('th', {}, 'Total')));
  for (const row of STATE.rows) {
    const src = row.source;
    const probes = h('div', {class: 'excerpt'});
    for (const q of src.aiQuestions || []) probes.append(h('div', {}, '• ' + q));
    if (src.iterations) probes.append(h('span', {class: 'badge'}, src.iterations + ' iterations'));
    const totalEl = h('td', {class: 'total'}, String(total(row.anonId)));
    table.append(h('tr', {},
      h('td', {}, row.anonId + ' ' + row.name),
      h('td', {}, row.source.partner || '—'),
      h('td', {}, h('div', {class: 'excerpt'}, src.writing || '[not recovered]')),
      h('td', {},
        h('div', {class: 'excerpt'}, src.summary || '[none]'),
        feedbackArea(row.anonId, 'writingFeedback'),
        feedbackArea(row.anonId, 'discussionFeedback')),
      h('td', {}, probes),
      h('td', {}, scoreSelect(row.anonId, 'writingScore', totalEl)),
      h('td', {}, scoreSelect(row.anonId, 'discussionScore', totalEl)),
      totalEl));
  }
  main.append(table);
}

async function lmsScores() {
  const token = sessionStorage.getItem('lmsToken');
  const base = sessionStorage.getItem('lmsBase');
  if (!token || !base) return null;
  const url = base + '/courses/' + STATE.courseId + '/assignments/' + STATE.assignmentId +
    '/submissions?per_page=100';
  const resp = await fetch(url, {headers: {Authorization: 'Bearer ' + token}});
  if (!resp.ok) return null;
  const subs = await resp.json();
  const byUser = {};
  for (const s of subs) byUser[s.user_id] = s.score;
  return byUser;
}

async function showChanges() {
  setTab('changes');
  const main = content();
  const current = await lmsScores();
  const table = h('table', {}, h('tr', {},
    h('th', {}, 'Student'), h('th', {}, 'Dashboard'), h('th', {}, 'LMS'), h('th', {}, 'Status')));
  for (const row of STATE.rows) {
    const want = total(row.anonId);
    let lms = null;
    if (current && row.lmsUserId in current) lms = current[row.lmsUserId];
    let status = 'new', cls = 'new';
    if (lms !== null && lms !== undefined) {
      if (lms === want) { status = 'unchanged'; cls = 'unchanged'; }
      else { status = 'changed (' + lms + ' → ' + want + ')'; cls = 'changed'; }
    }
    table.append(h('tr', {class: cls},
      h('td', {}, row.anonId + ' ' + row.name),
      h('td', {}, String(want)),
      h('td', {}, lms === null || lms === undefined ? '—' : String(lms)),
      h('td', {}, status)));
  }
  if (!current) {
    main.append(h('p', {}, 'No LMS credentials in this session; all rows shown as new.'));
  }
  main.append(table);
}

function downloadGrades() {
  const decisions = STATE.rows.map(row => ({
    anonId: row.anonId,
    lmsUserId: row.lmsUserId,
    score: total(row.anonId),
    writingFeedback: edits[row.anonId].writingFeedback,
    discussionFeedback: edits[row.anonId].discussionFeedback,
    overallNote: edits[row.anonId].overallNote
  }));
  const blob = new Blob([JSON.stringify({
    assignmentKey: STATE.assignmentKey,
    course: STATE.course,
    decisions: decisions
  }, null, 2)], {type: 'application/json'});
  const a = document.createElement('a');
  a.href = URL.createObjectURL(blob);
  a.download = STATE.course + '-' + STATE.assignmentKey + '-grades.json';
  a.click();
}

function content() {
  const main = document.getElementById('content');
  main.replaceChildren();
  return main;
}

function setTab(name) {
  for (const id of ['review', 'changes']) {
    document.getElementById('tab-' + id).classList.toggle('active', id === name);
  }
}

document.getElementById('title').textContent = STATE.course + ' — ' + STATE.title;
document.getElementById('download').addEventListener('click', downloadGrades);
document.getElementById('tab-review').addEventListener('click', showReview);
document.getElementById('tab-changes').addEventListener('click', showChanges);
showReview();
</script>
</body>
</html>
`
